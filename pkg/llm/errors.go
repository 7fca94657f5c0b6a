package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Reason 是提供方失败原因的分类。
type Reason string

const (
	ReasonAuth           Reason = "auth"
	ReasonQuota          Reason = "quota"
	ReasonNetwork        Reason = "network"
	ReasonInvalidRequest Reason = "invalid-request"
	ReasonUnknown        Reason = "unknown"
)

var (
	// ErrProviderFailure 表示所有提供方都失败。
	ErrProviderFailure = errors.New("all providers failed")
	// ErrTimeout 表示请求的整体超时已到，剩余提供方不再尝试。
	ErrTimeout = errors.New("request timed out")
)

// ProviderError 是单个提供方的一次失败。
type ProviderError struct {
	Provider   string
	Reason     Reason
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ClassifyStatus 把 HTTP 状态码映射为失败原因。
func ClassifyStatus(code int) Reason {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ReasonAuth
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return ReasonQuota
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge ||
		code == http.StatusUnprocessableEntity || code == http.StatusNotFound:
		return ReasonInvalidRequest
	case code == http.StatusRequestTimeout || code >= 500:
		return ReasonNetwork
	default:
		return ReasonUnknown
	}
}

// FailureError 汇总所有提供方的失败原因。errors.Is(err, ErrProviderFailure) 为 true。
type FailureError struct {
	Attempts []*ProviderError
}

func (e *FailureError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return fmt.Sprintf("%v: %s", ErrProviderFailure, strings.Join(parts, "; "))
}

func (e *FailureError) Is(target error) bool {
	return target == ErrProviderFailure
}

func (e *FailureError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// Reasons 返回 provider -> reason 的映射。
func (e *FailureError) Reasons() map[string]Reason {
	out := make(map[string]Reason, len(e.Attempts))
	for _, a := range e.Attempts {
		out[a.Provider] = a.Reason
	}
	return out
}
