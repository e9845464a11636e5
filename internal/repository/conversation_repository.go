// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"rfx-assist-go/internal/model"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository 定义了会话与消息的持久化操作接口。
// 同一会话允许并发写入，先后顺序由消息的 Timestamp 决定，
// 读取方必须按时间排序而不是写入顺序。
type ConversationRepository interface {
	// CreateConversation 创建会话并记录归属用户。
	CreateConversation(ctx context.Context, conversationID, title, userID string) error
	ConversationExists(ctx context.Context, conversationID string) (bool, error)
	// AppendMessage 在一个事务内写入消息及其引用子记录，返回消息 ID。
	AppendMessage(ctx context.Context, conversationID, text, sender string, msgType model.MessageType, fileLinks []string, references []model.DocReference) (string, error)
	// FetchMessages 按时间升序返回会话的全部消息。
	FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// FetchMessagesWithRefs 按时间升序返回消息并联表加载引用子记录。
	FetchMessagesWithRefs(ctx context.Context, conversationID string) ([]model.Message, error)
	// FetchConversations 按创建时间降序返回全部会话。
	FetchConversations(ctx context.Context) ([]model.Conversation, error)
}

// gormConversationRepository 是 ConversationRepository 接口的 GORM 实现。
type gormConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

// CreateConversation 在数据库中创建一个新的会话记录。
func (r *gormConversationRepository) CreateConversation(ctx context.Context, conversationID, title, userID string) error {
	conversation := model.Conversation{
		ID:        conversationID,
		UserID:    userID,
		CreatedOn: time.Now(),
		Title:     title,
	}
	if err := r.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// ConversationExists 检查会话是否已存在。
func (r *gormConversationRepository) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return count > 0, nil
}

// AppendMessage 写入一条消息。消息与引用子记录在同一事务内落库，
// 避免出现没有出处的半成品记录。
func (r *gormConversationRepository) AppendMessage(ctx context.Context, conversationID, text, sender string, msgType model.MessageType, fileLinks []string, references []model.DocReference) (string, error) {
	messageID := uuid.NewString()

	encodedLinks := ""
	if len(fileLinks) > 0 {
		linkBytes, err := json.Marshal(fileLinks)
		if err != nil {
			return "", fmt.Errorf("failed to marshal file links: %w", err)
		}
		encodedLinks = string(linkBytes)
	}

	message := model.Message{
		ID:             messageID,
		ConversationID: conversationID,
		Text:           text,
		Sender:         sender,
		MsgType:        msgType,
		FileLinks:      encodedLinks,
		Timestamp:      time.Now(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		for _, ref := range references {
			link := model.ReferenceLink{
				ID:        uuid.NewString(),
				DocID:     ref.ID,
				Label:     ref.Label,
				URL:       ref.URL,
				ImageURL:  ref.ImageURL,
				Slide:     ref.Slide,
				MessageID: messageID,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	return messageID, nil
}

// FetchMessages 按时间升序返回会话消息。未知会话返回空切片而不是错误。
func (r *gormConversationRepository) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

// FetchMessagesWithRefs 在 FetchMessages 的基础上预加载引用子记录。
func (r *gormConversationRepository) FetchMessagesWithRefs(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Preload("References").
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages with refs: %w", err)
	}
	return messages, nil
}

// FetchConversations 按创建时间降序返回全部会话。
func (r *gormConversationRepository) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Order("created_on DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	return conversations, nil
}
