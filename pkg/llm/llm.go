// Package llm 把多个大模型提供方封装为统一的调用接口，并按优先级故障转移。
package llm

import (
	"context"
	"unicode/utf8"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload 是与提供方无关的提示词载荷：system 消息在前，当前问题在最后。
type Payload struct {
	Messages []Message
}

// Size 返回所有消息内容的字符数之和。
func (p Payload) Size() int {
	n := 0
	for _, m := range p.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

// GenerationParams 控制生成行为，nil 字段表示使用提供方默认值。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Provider 是单个模型提供方。只有完整生成的结果才会以 nil error 返回，
// 失败统一返回 *ProviderError。超时由调用方通过 ctx 控制。
type Provider interface {
	Name() string
	Complete(ctx context.Context, payload Payload) (string, error)
}
