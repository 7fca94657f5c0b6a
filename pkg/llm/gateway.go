package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/log"
)

// Completion 是一次成功生成的结果。
type Completion struct {
	Text     string
	Provider string
	// Attempts 是成功之前失败的尝试
	Attempts []*ProviderError
}

// Gateway 按优先级依次调用提供方，直到某一个完整返回。
// Gateway 本身不保存请求状态，可以被并发调用。
type Gateway struct {
	providers      map[string]Provider
	order          []string
	attemptTimeout time.Duration
}

// NewGateway 创建网关。order 中的每个名字都必须对应一个 provider。
func NewGateway(providers []Provider, order []string, attemptTimeout time.Duration) (*Gateway, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, dup := byName[p.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate provider %q", model.ErrValidation, p.Name())
		}
		byName[p.Name()] = p
	}
	if len(order) == 0 {
		for _, p := range providers {
			order = append(order, p.Name())
		}
	}
	g := &Gateway{providers: byName, attemptTimeout: attemptTimeout}
	if err := g.checkOrder(order); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: no provider configured", model.ErrValidation)
	}
	g.order = append([]string(nil), order...)
	return g, nil
}

// Order 返回默认调用顺序的副本。
func (g *Gateway) Order() []string {
	return append([]string(nil), g.order...)
}

func (g *Gateway) checkOrder(order []string) error {
	for _, name := range order {
		if _, ok := g.providers[name]; !ok {
			return fmt.Errorf("%w: unknown provider %q", model.ErrValidation, name)
		}
	}
	return nil
}

// Complete 按 order（为空时使用默认顺序）依次尝试提供方。
// 任一提供方完整返回即结束；全部失败时返回 *FailureError；
// ctx 到期时不再尝试剩余提供方并返回 ErrTimeout。
func (g *Gateway) Complete(ctx context.Context, payload Payload, order []string) (*Completion, error) {
	if len(order) == 0 {
		order = g.order
	}
	if err := g.checkOrder(order); err != nil {
		return nil, err
	}

	var attempts []*ProviderError
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, g.interrupted(err, attempts)
		}

		text, perr := g.attempt(ctx, g.providers[name], payload)
		if perr == nil {
			return &Completion{Text: text, Provider: name, Attempts: attempts}, nil
		}
		attempts = append(attempts, perr)
		log.Warnw("llm provider failed", "provider", name, "reason", perr.Reason, "status", perr.StatusCode, "error", perr.Err)

		// 整体截止时间已到：这次失败属于超时而非提供方本身
		if err := ctx.Err(); err != nil {
			return nil, g.interrupted(err, attempts)
		}
	}
	return nil, &FailureError{Attempts: attempts}
}

func (g *Gateway) attempt(ctx context.Context, p Provider, payload Payload) (string, *ProviderError) {
	attemptCtx := ctx
	if g.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.attemptTimeout)
		defer cancel()
	}

	text, err := p.Complete(attemptCtx, payload)
	if err == nil {
		return text, nil
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return "", perr
	}
	reason := ReasonUnknown
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		reason = ReasonNetwork
	}
	return "", &ProviderError{Provider: p.Name(), Reason: reason, Err: err}
}

func (g *Gateway) interrupted(ctxErr error, attempts []*ProviderError) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if len(attempts) > 0 {
			return fmt.Errorf("%w after %d attempt(s): %v", ErrTimeout, len(attempts), (&FailureError{Attempts: attempts}).Error())
		}
		return ErrTimeout
	}
	return fmt.Errorf("llm request canceled: %w", ctxErr)
}
