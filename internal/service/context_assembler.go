package service

import (
	"fmt"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/llm"
)

// Assembly 是组装好的提示词载荷。
type Assembly struct {
	Payload llm.Payload
	// Chunks 是裁剪后仍保留在载荷中的分块，按分数降序
	Chunks  []model.RetrievedChunk
	History []model.ConversationTurn
	// BudgetExceeded 为 true 表示检索到的分块被全部裁掉，或只剩系统提示与问题仍然超出 maxSize
	BudgetExceeded bool
	// Overflow 为 true 表示裁剪到只剩系统提示与问题后仍然超出 maxSize
	Overflow bool
}

// Err 在 Overflow 时返回 ErrBudgetExceeded，载荷本身仍然完整可用。
func (a *Assembly) Err() error {
	if !a.Overflow {
		return nil
	}
	return fmt.Errorf("%w: preamble and question need %d chars", model.ErrBudgetExceeded, a.Payload.Size())
}

// ContextAssembler 按固定顺序组装载荷：系统提示与参考资料、历史（旧到新）、当前问题。
type ContextAssembler struct {
	refStart string
	refEnd   string
}

// NewContextAssembler 创建组装器，参考资料的包裹符来自提示词配置。
func NewContextAssembler(cfg config.LLMPromptConfig) *ContextAssembler {
	a := &ContextAssembler{refStart: cfg.RefStart, refEnd: cfg.RefEnd}
	if a.refStart == "" {
		a.refStart = "<<REF>>"
	}
	if a.refEnd == "" {
		a.refEnd = "<<END>>"
	}
	return a
}

// Assemble 组装载荷。超出 maxSize 时先丢分数最低的分块，再丢最早的历史，系统提示和问题始终保留。
func (a *ContextAssembler) Assemble(chunks []model.RetrievedChunk, history []model.ConversationTurn, preamble, question string, maxSize int) (*Assembly, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", model.ErrValidation)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", model.ErrValidation, maxSize)
	}

	kept := append([]model.RetrievedChunk(nil), chunks...)
	turns := make([]model.ConversationTurn, 0, len(history))
	for _, t := range history {
		if t.Role == model.RoleUser || t.Role == model.RoleAssistant {
			turns = append(turns, t)
		}
	}

	payload := a.build(kept, turns, preamble, question)
	for payload.Size() > maxSize {
		if len(kept) > 0 {
			kept = dropLowestScored(kept)
		} else if len(turns) > 0 {
			turns = turns[1:]
		} else {
			break
		}
		payload = a.build(kept, turns, preamble, question)
	}

	return &Assembly{
		Payload:        payload,
		Chunks:         kept,
		History:        turns,
		BudgetExceeded: payload.Size() > maxSize || (len(chunks) > 0 && len(kept) == 0),
		Overflow:       payload.Size() > maxSize,
	}, nil
}

// dropLowestScored 去掉分数最低的分块，同分时去掉排在后面的。
func dropLowestScored(chunks []model.RetrievedChunk) []model.RetrievedChunk {
	lowest := len(chunks) - 1
	for i := len(chunks) - 2; i >= 0; i-- {
		if chunks[i].Score < chunks[lowest].Score {
			lowest = i
		}
	}
	return append(chunks[:lowest:lowest], chunks[lowest+1:]...)
}

func (a *ContextAssembler) build(chunks []model.RetrievedChunk, turns []model.ConversationTurn, preamble, question string) llm.Payload {
	var sys strings.Builder
	sys.WriteString(preamble)
	if len(chunks) > 0 {
		if preamble != "" {
			sys.WriteString("\n\n")
		}
		sys.WriteString(a.refStart)
		sys.WriteString("\n")
		for i, c := range chunks {
			fileLabel := c.FileName
			if fileLabel == "" {
				fileLabel = "unknown"
			}
			fmt.Fprintf(&sys, "[%d] (%s #%d) %s\n", i+1, fileLabel, c.SeqIndex, c.Content)
		}
		sys.WriteString(a.refEnd)
	}

	msgs := make([]llm.Message, 0, len(turns)+2)
	msgs = append(msgs, llm.Message{Role: model.RoleSystem, Content: sys.String()})
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: question})
	return llm.Payload{Messages: msgs}
}
