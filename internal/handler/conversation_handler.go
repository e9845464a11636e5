package handler

import (
	"net/http"
	"rfx-assist-go/internal/repository"
	"rfx-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与会话历史相关的 API 请求。
// 历史读取没有业务规则，处理器直接依赖数据访问层。
type ConversationHandler struct {
	conversationRepo repository.ConversationRepository
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversationRepo repository.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{conversationRepo: conversationRepo}
}

// GetConversations 处理获取会话列表的请求，按创建时间降序返回。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	conversations, err := h.conversationRepo.FetchConversations(c.Request.Context())
	if err != nil {
		log.Errorf("[ConversationHandler] 获取会话列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取会话列表失败",
			"data":    nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversations})
}

// GetMessages 处理获取单个会话全部消息的请求，按时间升序返回并带引用。
// 未知会话返回空列表，与存储层语义一致。
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的会话 ID", "data": nil})
		return
	}

	messages, err := h.conversationRepo.FetchMessagesWithRefs(c.Request.Context(), conversationID)
	if err != nil {
		log.Errorf("[ConversationHandler] 获取会话消息失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取会话消息失败",
			"data":    nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}
