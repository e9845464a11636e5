// Package events defines the structures for events that are sent to Kafka.
package events

import "time"

// 事件对应的流程名称。
const (
	FlowNewQuery      = "new_query"
	FlowRefine        = "refine"
	FlowBatch         = "batch"
	FlowMultiQuestion = "multi_question"
)

// QueryCompleted 在一次问答流程成功落库后发出，用于离线分析。
type QueryCompleted struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Flow           string    `json:"flow"`
	AnswerCount    int       `json:"answer_count"`
	Grounded       bool      `json:"grounded"`
	Timestamp      time.Time `json:"timestamp"`
}
