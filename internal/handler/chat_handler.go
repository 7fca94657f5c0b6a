package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"catalog-assist-go/internal/middleware"
	"catalog-assist-go/internal/service"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// AskRequest 是提问的请求体。未指定 catalogItemId/documentIds 时必须显式设置 global。
type AskRequest struct {
	Question      string   `json:"question" binding:"required"`
	CatalogItemID *uint    `json:"catalogItemId"`
	DocumentIDs   []uint   `json:"documentIds"`
	Global        bool     `json:"global"`
	Providers     []string `json:"providers"`
}

func (r AskRequest) toService(userID uint) service.ChatRequest {
	return service.ChatRequest{
		UserID:        userID,
		Question:      r.Question,
		CatalogItemID: r.CatalogItemID,
		DocumentIDs:   r.DocumentIDs,
		Global:        r.Global,
		Providers:     r.Providers,
	}
}

// ChatHandler 处理问答请求，支持普通 HTTP 与 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
	users       middleware.UserFinder
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager, users middleware.UserFinder) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager, users: users}
}

// Ask 处理一次问答，完整生成后一次性返回。
func (h *ChatHandler) Ask(c *gin.Context) {
	user, exists := middleware.CurrentUser(c)
	if !exists {
		fail(c, http.StatusInternalServerError, "无法获取用户信息")
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求参数")
		return
	}

	resp, err := h.chatService.Ask(c.Request.Context(), req.toService(user.ID))
	if err != nil {
		failWith(c, "chat", err)
		return
	}
	ok(c, "success", resp)
}

// wsMessage 是 WebSocket 下发的消息。
type wsMessage struct {
	Type      string      `json:"type"`
	Code      int         `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Handle 处理 WebSocket 连接。每条客户端消息是一个 AskRequest（或纯文本问题），
// 服务端在生成完成后回复一条 answer 或 error，再发送 completion 通知。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, claims, err := middleware.Authenticate(c.Request.Context(), h.jwtManager, h.users, c.Param("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, err.Error())
		return
	}
	defaultScope, valid := optionalUintQuery(c, "catalogItemId")
	if !valid {
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
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		req := AskRequest{CatalogItemID: defaultScope}
		trimmed := strings.TrimSpace(string(message))
		if strings.HasPrefix(trimmed, "{") {
			if err := json.Unmarshal(message, &req); err != nil {
				h.write(conn, wsMessage{Type: "error", Code: http.StatusBadRequest, Message: "无效的消息格式"})
				continue
			}
			if req.CatalogItemID == nil {
				req.CatalogItemID = defaultScope
			}
		} else {
			req.Question = trimmed
		}

		resp, err := h.chatService.Ask(c.Request.Context(), req.toService(user.ID))
		if err != nil {
			status, msg := statusOf(err)
			log.Errorf("处理 WebSocket 问答失败: %v", err)
			h.write(conn, wsMessage{Type: "error", Code: status, Message: msg})
		} else {
			h.write(conn, wsMessage{Type: "answer", Data: resp})
		}
		h.write(conn, wsMessage{Type: "completion", Message: "响应已完成"})
	}
}

func (h *ChatHandler) write(conn *websocket.Conn, msg wsMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	b, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
