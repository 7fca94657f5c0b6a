package handler

import (
	"net/http"
	"strconv"

	"catalog-assist-go/internal/service"
	"catalog-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 直接暴露检索结果，便于排查回答依据。
type SearchHandler struct {
	retrieval service.RetrievalService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrieval service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search 处理 GET /search?query=...&catalogItemId=...&global=true&budget=...
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		fail(c, http.StatusBadRequest, "无效的查询参数")
		return
	}
	catalogItemID, valid := optionalUintQuery(c, "catalogItemId")
	if !valid {
		return
	}
	global, _ := strconv.ParseBool(c.DefaultQuery("global", "false"))
	budget, err := strconv.Atoi(c.DefaultQuery("budget", "0"))
	if err != nil || budget < 0 {
		fail(c, http.StatusBadRequest, "无效的 budget")
		return
	}

	results, err := h.retrieval.Retrieve(c.Request.Context(), query, service.Scope{CatalogItemID: catalogItemID, Global: global}, budget)
	if err != nil {
		failWith(c, "search", err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	ok(c, "success", results)
}
