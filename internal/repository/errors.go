package repository

import (
	"errors"
	"fmt"
	"strings"

	"catalog-assist-go/internal/model"

	"gorm.io/gorm"
)

// wrapNotFound 将 gorm.ErrRecordNotFound 转换为 model.ErrNotFound，其余错误原样返回。
func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), model.ErrNotFound)
	}
	return err
}

// isDuplicateKey 判断是否违反唯一约束。开启 TranslateError 后方言会返回 gorm.ErrDuplicatedKey，
// 字符串匹配兜底未翻译的驱动。
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

// escapeLike 转义 LIKE 通配符，配合 ESCAPE '!' 使用。
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
