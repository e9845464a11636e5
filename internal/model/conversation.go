// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// MessageType 标记消息来自用户还是系统。
type MessageType string

const (
	MessageTypeUser   MessageType = "USER"
	MessageTypeSystem MessageType = "AI"
)

// 消息发送方的固定取值。
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Conversation 对应 conversations 表。会话创建后不再修改，
// 只通过追加 Message 演进。
type Conversation struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:char(36);index" json:"user_id,omitempty"`
	CreatedOn time.Time `gorm:"autoCreateTime" json:"created_on"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Summary   string    `gorm:"type:text" json:"summary,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// Message 对应 messages 表。消息只追加不修改，
// 会话历史的顺序由 Timestamp 定义，读取时必须按其排序。
type Message struct {
	ID             string          `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID string          `gorm:"type:char(36);index;not null" json:"conversation_id"`
	Text           string          `gorm:"type:text;not null" json:"text"`
	Sender         string          `gorm:"type:varchar(32);not null" json:"sender"`
	MsgType        MessageType     `gorm:"type:varchar(16);not null" json:"msg_type"`
	FileLinks      string          `gorm:"type:text" json:"-"` // JSON 编码的 []string
	Timestamp      time.Time       `gorm:"index;not null" json:"timestamp"`
	References     []ReferenceLink `gorm:"foreignKey:MessageID" json:"references,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}

// ReferenceLink 对应 reference_links 表，是消息的引用子记录，
// 始终由一条证据派生，不会独立创建。
type ReferenceLink struct {
	ID        string `gorm:"type:char(36);primaryKey" json:"id"`
	DocID     string `gorm:"type:varchar(64);not null" json:"doc_id"`
	Label     string `gorm:"type:varchar(255)" json:"label"`
	URL       string `gorm:"type:varchar(1024)" json:"url"`
	ImageURL  string `gorm:"type:varchar(1024)" json:"image_url,omitempty"`
	Slide     string `gorm:"type:varchar(1024)" json:"slide,omitempty"`
	MessageID string `gorm:"type:char(36);index;not null" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ReferenceLink) TableName() string {
	return "reference_links"
}
