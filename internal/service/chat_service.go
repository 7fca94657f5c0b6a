package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/llm"
	"catalog-assist-go/pkg/log"
)

// Completer 是模型网关的调用接口，由 *llm.Gateway 实现。
type Completer interface {
	Complete(ctx context.Context, payload llm.Payload, order []string) (*llm.Completion, error)
}

// ChatRequest 是一次提问。
type ChatRequest struct {
	UserID        uint
	Question      string
	CatalogItemID *uint
	DocumentIDs   []uint
	Global        bool
	// Providers 覆盖默认的提供方顺序，为空时使用配置
	Providers []string
}

// ChatResponse 是一次完整的回答。
type ChatResponse struct {
	Answer       string            `json:"answerText"`
	Sources      []model.SourceRef `json:"sourcesUsed"`
	ProviderUsed string            `json:"providerUsed"`
}

// ChatService 协调检索、组装、生成与对话记录。
type ChatService interface {
	Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type chatService struct {
	cfg           config.Config
	userRepo      repository.UserRepository
	retrieval     RetrievalService
	assembler     *ContextAssembler
	gateway       Completer
	conversations ConversationService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	cfg config.Config,
	userRepo repository.UserRepository,
	retrieval RetrievalService,
	assembler *ContextAssembler,
	gateway Completer,
	conversations ConversationService,
) ChatService {
	return &chatService{
		cfg:           cfg,
		userRepo:      userRepo,
		retrieval:     retrieval,
		assembler:     assembler,
		gateway:       gateway,
		conversations: conversations,
	}
}

// Ask 回答一个问题。生成失败时不写入任何对话记录；
// 检索不到依据时返回配置的无结果答复，不调用模型；
// 问题与系统提示本身超出上下文上限时返回 ErrBudgetExceeded。
func (s *chatService) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", model.ErrValidation)
	}
	if s.cfg.Chat.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Chat.RequestTimeout)
		defer cancel()
	}

	exists, err := s.userRepo.Exists(ctx, req.UserID)
	if err != nil {
		return nil, s.mapDeadline(ctx, err)
	}
	if !exists {
		return nil, fmt.Errorf("user %d: %w", req.UserID, model.ErrNotFound)
	}

	history, err := s.conversations.RecentHistory(ctx, req.UserID, s.cfg.Chat.HistoryTurns)
	if err != nil {
		return nil, s.mapDeadline(ctx, fmt.Errorf("load history: %w", err))
	}

	chunks, err := s.retrieval.Retrieve(ctx, question, Scope{
		CatalogItemID: req.CatalogItemID,
		DocumentIDs:   req.DocumentIDs,
		Global:        req.Global,
	}, s.cfg.Retrieval.BudgetChars)
	if err != nil {
		return nil, s.mapDeadline(ctx, err)
	}
	if len(chunks) == 0 {
		log.Infof("[ChatService] 用户 %d 的问题没有检索到依据", req.UserID)
		return s.noResult(ctx, req.UserID, question)
	}

	assembly, err := s.assembler.Assemble(chunks, history, s.cfg.LLM.Prompt.Rules, question, s.cfg.Chat.MaxContextChars)
	if err != nil {
		return nil, err
	}
	if err := assembly.Err(); err != nil {
		log.Warnw("[ChatService] 问题与系统提示超出上下文上限", "user", req.UserID, "limit", s.cfg.Chat.MaxContextChars, "error", err)
		return nil, err
	}
	if len(assembly.Chunks) == 0 {
		log.Warnf("[ChatService] 检索结果在组装时被全部裁剪, user=%d", req.UserID)
		return s.noResult(ctx, req.UserID, question)
	}

	completion, err := s.gateway.Complete(ctx, assembly.Payload, req.Providers)
	if err != nil {
		var failure *llm.FailureError
		if errors.As(err, &failure) {
			log.Errorw("[ChatService] 所有模型提供方均失败", "user", req.UserID, "reasons", failure.Reasons())
		}
		return nil, err
	}

	if _, err := s.conversations.AppendExchange(context.WithoutCancel(ctx), req.UserID, question, completion.Text, completion.Provider); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	sources := make([]model.SourceRef, 0, len(assembly.Chunks))
	for _, c := range assembly.Chunks {
		sources = append(sources, model.SourceRef{DocumentID: c.DocumentID, ChunkIndex: c.SeqIndex})
	}
	return &ChatResponse{Answer: completion.Text, Sources: sources, ProviderUsed: completion.Provider}, nil
}

func (s *chatService) noResult(ctx context.Context, userID uint, question string) (*ChatResponse, error) {
	answer := s.cfg.LLM.Prompt.NoResultText
	if _, err := s.conversations.AppendExchange(context.WithoutCancel(ctx), userID, question, answer, ""); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return &ChatResponse{Answer: answer, Sources: []model.SourceRef{}}, nil
}

// mapDeadline 把请求整体超时统一报告为 llm.ErrTimeout。
func (s *chatService) mapDeadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}
	return err
}
