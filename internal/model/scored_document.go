// Package model 包含了应用的数据模型定义。
package model

// DocumentPayload 是向量索引中随每个文档存储的载荷。
// source 是去重键：同一来源文档在证据集中只保留一条。
type DocumentPayload struct {
	Source string   `json:"source"`
	Title  string   `json:"title"`
	Answer string   `json:"answer"`
	Images []string `json:"images,omitempty"`
	Slide  string   `json:"slide,omitempty"`
}

// ScoredDocument 代表一次向量检索返回的单条带分结果。
// 结果按 Score 降序排列，Score 为相似度（cosine，范围约 [0,1]）。
type ScoredDocument struct {
	ID      string           `json:"id"`
	Score   float64          `json:"score"`
	Payload *DocumentPayload `json:"payload"`
}

// Evidence 是通过相关性过滤、按来源去重后的检索文档。
// 同一来源多条命中时保留输入顺序中最后一条（last-write-wins）。
type Evidence struct {
	DocID   string
	Payload DocumentPayload
}

// Reference 将一条证据转换为答案附带的引用链接。
func (e Evidence) Reference() DocReference {
	ref := DocReference{
		ID:    e.DocID,
		Label: e.Payload.Title,
		URL:   e.Payload.Source,
		Slide: e.Payload.Slide,
	}
	if len(e.Payload.Images) > 0 {
		ref.ImageURL = e.Payload.Images[0]
	}
	return ref
}
