package model

import "errors"

// 核心业务错误。各层以 fmt.Errorf("...: %w", ErrXxx) 包装，在 HTTP 边界用 errors.Is 映射状态码。
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrValidation     = errors.New("validation error")
	ErrBudgetExceeded = errors.New("budget exceeded")
)
