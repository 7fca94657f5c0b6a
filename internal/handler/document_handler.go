package handler

import (
	"net/http"
	"strconv"

	"catalog-assist-go/internal/service"
	"catalog-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// IngestRequest 是提交入库的请求体。Text 为空时从已登记的源文件提取。
type IngestRequest struct {
	Text string `json:"text"`
}

// Register 登记一份新文档。
func (h *DocumentHandler) Register(c *gin.Context) {
	var req service.RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求参数")
		return
	}
	doc, err := h.docService.Register(c.Request.Context(), req)
	if err != nil {
		failWith(c, "register document", err)
		return
	}
	created(c, "文档登记成功", doc)
}

// List 列出文档，可按 catalogItemId 过滤。
func (h *DocumentHandler) List(c *gin.Context) {
	catalogItemID, valid := optionalUintQuery(c, "catalogItemId")
	if !valid {
		return
	}
	docs, err := h.docService.List(c.Request.Context(), catalogItemID)
	if err != nil {
		failWith(c, "list documents", err)
		return
	}
	ok(c, "获取文档列表成功", docs)
}

// Get 返回单个文档。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	doc, err := h.docService.Get(c.Request.Context(), id)
	if err != nil {
		failWith(c, "get document", err)
		return
	}
	ok(c, "success", doc)
}

// Chunks 按序号返回文档的全部分块。
func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	chunks, err := h.docService.Chunks(c.Request.Context(), id)
	if err != nil {
		failWith(c, "list chunks", err)
		return
	}
	ok(c, "success", chunks)
}

// Ingest 提交文档入库。?async=true 时投递到消息队列并立即返回 202。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	var req IngestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "无效的请求参数")
			return
		}
	}
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))

	result, err := h.docService.Ingest(c.Request.Context(), id, req.Text, async)
	if err != nil {
		failWith(c, "ingest document", err)
		return
	}
	if result.Async {
		log.Infof("[DocumentHandler] 入库任务已投递, DocumentID: %d, TaskID: %s", id, result.TaskID)
		c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "入库任务已提交", "data": result})
		return
	}
	ok(c, "文档入库成功", result)
}

// Reindex 使用归档文本重建文档的分块与向量。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	result, err := h.docService.Reindex(c.Request.Context(), id)
	if err != nil {
		failWith(c, "reindex document", err)
		return
	}
	ok(c, "重建索引成功", result)
}

// Deactivate 停用文档，使其不再参与检索。
func (h *DocumentHandler) Deactivate(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.docService.Deactivate(c.Request.Context(), id); err != nil {
		failWith(c, "deactivate document", err)
		return
	}
	ok(c, "文档已停用", nil)
}

// Delete 删除文档及其全部派生数据。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), id); err != nil {
		failWith(c, "delete document", err)
		return
	}
	ok(c, "文档删除成功", nil)
}
