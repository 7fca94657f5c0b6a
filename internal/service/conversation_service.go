// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/keylock"
	"catalog-assist-go/pkg/log"
)

// ConversationService 维护每个用户的对话记录。同一用户的写入串行执行，不同用户互不阻塞。
type ConversationService interface {
	Append(ctx context.Context, userID uint, role, content string) (*model.ConversationTurn, error)
	// AppendExchange 在同一事务中写入一问一答，两条记录序号连续。
	AppendExchange(ctx context.Context, userID uint, question, answer, provider string) ([]model.ConversationTurn, error)
	// RecentHistory 返回最近 limit 轮，按时间从旧到新。
	RecentHistory(ctx context.Context, userID uint, limit int) ([]model.ConversationTurn, error)
	GetConversationHistory(ctx context.Context, userID uint, limit int) ([]model.HistoryItemDTO, error)
}

type conversationService struct {
	repo  repository.ConversationRepository
	cache repository.HistoryCache
	locks keylock.Map[uint]
}

// NewConversationService 创建一个新的 ConversationService。cache 为 nil 时直接读库。
func NewConversationService(repo repository.ConversationRepository, cache repository.HistoryCache) ConversationService {
	return &conversationService{repo: repo, cache: cache}
}

func (s *conversationService) Append(ctx context.Context, userID uint, role, content string) (*model.ConversationTurn, error) {
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: invalid role %q", model.ErrValidation, role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", model.ErrValidation)
	}
	rows, err := s.append(ctx, userID, []model.ConversationTurn{{Role: role, Content: content}})
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (s *conversationService) AppendExchange(ctx context.Context, userID uint, question, answer, provider string) ([]model.ConversationTurn, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: question and answer must not be empty", model.ErrValidation)
	}
	return s.append(ctx, userID, []model.ConversationTurn{
		{Role: model.RoleUser, Content: question},
		{Role: model.RoleAssistant, Content: answer, Provider: provider},
	})
}

func (s *conversationService) append(ctx context.Context, userID uint, turns []model.ConversationTurn) ([]model.ConversationTurn, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	rows, err := s.repo.Append(ctx, userID, turns)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			log.Warnf("[ConversationService] 清除用户 %d 的历史缓存失败: %v", userID, err)
		}
	}
	return rows, nil
}

func (s *conversationService) RecentHistory(ctx context.Context, userID uint, limit int) ([]model.ConversationTurn, error) {
	if limit <= 0 {
		return []model.ConversationTurn{}, nil
	}
	if s.cache == nil || limit > repository.HistoryCacheSize {
		return s.repo.Recent(ctx, userID, limit)
	}

	turns, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		log.Warnf("[ConversationService] 读取用户 %d 的历史缓存失败，回退到数据库: %v", userID, err)
	}
	if !ok {
		// 回填在用户锁内进行，避免与并发写入交错后缓存旧数据
		unlock := s.locks.Lock(userID)
		turns, err = s.repo.Recent(ctx, userID, repository.HistoryCacheSize)
		if err == nil {
			if cerr := s.cache.Set(ctx, userID, turns); cerr != nil {
				log.Warnf("[ConversationService] 回填用户 %d 的历史缓存失败: %v", userID, cerr)
			}
		}
		unlock()
		if err != nil {
			return nil, err
		}
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *conversationService) GetConversationHistory(ctx context.Context, userID uint, limit int) ([]model.HistoryItemDTO, error) {
	turns, err := s.RecentHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]model.HistoryItemDTO, 0, len(turns))
	for _, t := range turns {
		items = append(items, model.HistoryItemDTO{
			Seq:       t.Seq,
			Role:      t.Role,
			Content:   t.Content,
			Provider:  t.Provider,
			Timestamp: model.LocalTime(t.CreatedAt),
		})
	}
	return items, nil
}
