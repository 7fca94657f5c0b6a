package handler

import (
	"net/http"

	"catalog-assist-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CatalogHandler 处理目录条目的增删查。
type CatalogHandler struct {
	catalogService service.CatalogService
}

// NewCatalogHandler 创建一个新的 CatalogHandler 实例。
func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) Create(c *gin.Context) {
	var req service.CreateCatalogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求参数")
		return
	}
	item, err := h.catalogService.Create(c.Request.Context(), req)
	if err != nil {
		failWith(c, "create catalog item", err)
		return
	}
	created(c, "目录条目创建成功", item)
}

func (h *CatalogHandler) List(c *gin.Context) {
	items, err := h.catalogService.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		failWith(c, "list catalog items", err)
		return
	}
	ok(c, "success", items)
}

func (h *CatalogHandler) Get(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	item, err := h.catalogService.Get(c.Request.Context(), id)
	if err != nil {
		failWith(c, "get catalog item", err)
		return
	}
	ok(c, "success", item)
}

// Documents 返回引用该条目的文档。
func (h *CatalogHandler) Documents(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	docs, err := h.catalogService.Documents(c.Request.Context(), id)
	if err != nil {
		failWith(c, "list catalog documents", err)
		return
	}
	ok(c, "success", docs)
}

func (h *CatalogHandler) Delete(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.catalogService.Delete(c.Request.Context(), id); err != nil {
		failWith(c, "delete catalog item", err)
		return
	}
	ok(c, "目录条目删除成功", nil)
}
