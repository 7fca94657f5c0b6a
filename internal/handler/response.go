// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/llm"
	"catalog-assist-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// statusOf 把业务错误映射为 HTTP 状态码与对外消息。
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, llm.ErrProviderFailure):
		// 具体原因只写日志
		return http.StatusServiceUnavailable, "AI服务暂时不可用，请稍后重试"
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "请求超时，请稍后重试"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// failWith 记录错误并按错误类型返回响应。
func failWith(c *gin.Context, op string, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorw(op+" failed", "path", c.Request.URL.Path, "status", status, "error", err)
	} else {
		log.Warnw(op+" rejected", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	fail(c, status, message)
}

// uintParam 解析路径参数中的 ID。
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "无效的 "+name)
		return 0, false
	}
	return uint(v), true
}

// optionalUintQuery 解析可选的查询参数，缺省时返回 nil。
func optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "无效的 "+name)
		return nil, false
	}
	id := uint(v)
	return &id, true
}
