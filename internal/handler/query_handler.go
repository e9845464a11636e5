// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/internal/service"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// QueryHandler 结构体定义了问答相关的处理器。
type QueryHandler struct {
	queryService service.QueryService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// callerID 从认证中间件写入的 claims 中取出调用方的用户 ID。
func callerID(c *gin.Context) string {
	claims, ok := c.Get("claims")
	if !ok {
		return ""
	}
	return claims.(*token.CustomClaims).UserID
}

// respondError 把服务层错误映射为 HTTP 状态码：
// 校验错误是调用方的问题，其余一律按服务端错误处理。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrValidation) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": nil})
}

type queryRequest struct {
	ConversationID string        `json:"conversation_id" binding:"required"`
	Question       string        `json:"question" binding:"required"`
	RFxType        model.RFxType `json:"rfx_type" binding:"required"`
	Options        model.Options `json:"options"`
	Fallback       bool          `json:"fallback"`
	N              int           `json:"n"`
}

// NewQuery 是处理单问题查询请求的 Gin 处理函数。
func (h *QueryHandler) NewQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 查询请求参数无效: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	log.Infof("[QueryHandler] 收到查询请求, conversation: %s", req.ConversationID)

	result, err := h.queryService.NewQuery(c.Request.Context(), service.NewQueryRequest{
		ConversationID: req.ConversationID,
		UserID:         callerID(c),
		Question:       req.Question,
		Kind:           req.RFxType,
		Options:        req.Options,
		Fallback:       req.Fallback,
		Variants:       req.N,
	})
	if err != nil {
		log.Errorf("[QueryHandler] 查询失败, error: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}

type refineRequest struct {
	ConversationID string        `json:"conversation_id" binding:"required"`
	Instruction    string        `json:"instruction" binding:"required"`
	RFxType        model.RFxType `json:"rfx_type" binding:"required"`
	Options        model.Options `json:"options"`
	N              int           `json:"n"`
}

// Refine 是处理追问请求的 Gin 处理函数。
func (h *QueryHandler) Refine(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 追问请求参数无效: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	log.Infof("[QueryHandler] 收到追问请求, conversation: %s", req.ConversationID)

	result, err := h.queryService.Refine(c.Request.Context(), service.RefineRequest{
		ConversationID: req.ConversationID,
		UserID:         callerID(c),
		Instruction:    req.Instruction,
		Kind:           req.RFxType,
		Options:        req.Options,
		Variants:       req.N,
	})
	if err != nil {
		log.Errorf("[QueryHandler] 追问失败, error: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}

type multiQuestionRequest struct {
	Questions []string      `json:"questions" binding:"required"`
	RFxType   model.RFxType `json:"rfx_type" binding:"required"`
	Options   model.Options `json:"options"`
	Fallback  bool          `json:"fallback"`
}

// MultiQuestion 是处理多问题请求的 Gin 处理函数。
func (h *QueryHandler) MultiQuestion(c *gin.Context) {
	var req multiQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 多问题请求参数无效: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	log.Infof("[QueryHandler] 收到多问题请求, %d 个问题", len(req.Questions))

	result, err := h.queryService.MultiQuestion(c.Request.Context(), service.MultiQuestionRequest{
		UserID:    callerID(c),
		Questions: req.Questions,
		Kind:      req.RFxType,
		Options:   req.Options,
		Fallback:  req.Fallback,
	})
	if err != nil {
		log.Errorf("[QueryHandler] 多问题流程失败, error: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}
