package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/internal/service"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/token"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// WSHandler 负责处理 WebSocket 问答连接：同一连接上按序收发，
// 每收到一条查询请求就执行一次完整的问答流程。
type WSHandler struct {
	queryService service.QueryService
	jwtManager   *token.JWTManager
}

// NewWSHandler 创建一个新的 WSHandler。
func NewWSHandler(queryService service.QueryService, jwtManager *token.JWTManager) *WSHandler {
	return &WSHandler{queryService: queryService, jwtManager: jwtManager}
}

// wsQueryRequest 是 WebSocket 连接上的查询消息，字段与 HTTP 接口一致。
type wsQueryRequest struct {
	ConversationID string        `json:"conversation_id"`
	Question       string        `json:"question"`
	RFxType        model.RFxType `json:"rfx_type"`
	Options        model.Options `json:"options"`
	Fallback       bool          `json:"fallback"`
	N              int           `json:"n"`
}

// Handle 处理一个传入的 WebSocket 连接。token 经 URL 路径传入，
// 因为浏览器的 WebSocket API 无法设置 Authorization 头。
func (h *WSHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req wsQueryRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.writeError(conn, http.StatusBadRequest, "无效的请求参数")
			continue
		}

		result, err := h.queryService.NewQuery(c.Request.Context(), service.NewQueryRequest{
			ConversationID: req.ConversationID,
			UserID:         claims.UserID,
			Question:       req.Question,
			Kind:           req.RFxType,
			Options:        req.Options,
			Fallback:       req.Fallback,
			Variants:       req.N,
		})
		if err != nil {
			log.Errorf("WebSocket 查询失败: %v", err)
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrValidation) {
				status = http.StatusBadRequest
			}
			h.writeError(conn, status, err.Error())
			h.writeCompletion(conn)
			continue
		}

		resp, _ := json.Marshal(gin.H{"type": "result", "data": result})
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			log.Warnf("向 WebSocket 写入结果失败: %v", err)
			break
		}
		h.writeCompletion(conn)
	}
}

// writeError 以统一的 JSON 结构回发错误。
func (h *WSHandler) writeError(conn *websocket.Conn, code int, message string) {
	b, _ := json.Marshal(gin.H{"type": "error", "code": code, "message": message})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// writeCompletion 回发一条完成通知，前端据此解除输入锁定。
func (h *WSHandler) writeCompletion(conn *websocket.Conn) {
	b, _ := json.Marshal(gin.H{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
