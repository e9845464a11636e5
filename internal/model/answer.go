package model

import "time"

// RFxType 区分两类生成任务：标书回复（proposal）与评审意见（comment）。
type RFxType string

const (
	RFxProposal RFxType = "proposal"
	RFxComment  RFxType = "comment"
)

// Valid 检查 RFxType 是否为受支持的取值。
func (t RFxType) Valid() bool {
	return t == RFxProposal || t == RFxComment
}

// Options 控制答案生成的篇幅与语气，缺省值由配置决定。
type Options struct {
	Length string `json:"length,omitempty"`
	Tone   string `json:"tone,omitempty"`
}

// DocReference 是附加在答案上的引用链接，始终由一条证据派生。
type DocReference struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Slide    string `json:"slide,omitempty"`
}

// AnswerRecord 是一条生成的答案及其出处。
// 同一问题的所有变体共享同一份 ReferenceLinks：引用描述的是
// 生成时可用的证据，而不是某个变体实际引用了什么。
type AnswerRecord struct {
	Text           string         `json:"text"`
	Sender         string         `json:"sender"`
	ReferenceLinks []DocReference `json:"referenceLinks"`
	FileLinks      []string       `json:"file_links,omitempty"`
}

// QueryResult 是单个问题的完整应答。
type QueryResult struct {
	ConversationID string         `json:"conversation_id"`
	Question       string         `json:"question,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Results        []AnswerRecord `json:"results"`
}

// SlideDeckResult 是多问题流程的应答：逐题结果加上合并后的幻灯片地址。
// 幻灯片合并失败时 SlideDeck 降级为空字符串，不影响答案本身。
type SlideDeckResult struct {
	SlideDeck string        `json:"slide_deck"`
	Answers   []QueryResult `json:"answers"`
}
