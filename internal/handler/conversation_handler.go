package handler

import (
	"net/http"
	"strconv"

	"catalog-assist-go/internal/middleware"
	"catalog-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 返回当前用户最近的对话记录，按时间从旧到新。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	user, exists := middleware.CurrentUser(c)
	if !exists {
		fail(c, http.StatusInternalServerError, "无法获取用户信息")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}

	history, err := h.service.GetConversationHistory(c.Request.Context(), user.ID, limit)
	if err != nil {
		failWith(c, "get conversation", err)
		return
	}
	ok(c, "success", history)
}
