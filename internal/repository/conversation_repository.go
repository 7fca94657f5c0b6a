// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"

	"catalog-assist-go/internal/model"

	"gorm.io/gorm"
)

// maxAppendAttempts 是序号冲突（其他进程并发写入同一用户）时的重试次数。
const maxAppendAttempts = 3

// ConversationRepository 定义了对话轮次的持久化接口。
type ConversationRepository interface {
	// Append 在一个事务内按顺序追加若干轮次，序号为当前最大序号之后的连续值。
	Append(ctx context.Context, userID uint, turns []model.ConversationTurn) ([]model.ConversationTurn, error)
	// Recent 返回最近 limit 条轮次，按时间从旧到新排列。
	Recent(ctx context.Context, userID uint, limit int) ([]model.ConversationTurn, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Append(ctx context.Context, userID uint, turns []model.ConversationTurn) ([]model.ConversationTurn, error) {
	var (
		rows []model.ConversationTurn
		err  error
	)
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		rows, err = r.appendOnce(ctx, userID, turns)
		if err == nil || !isDuplicateKey(err) {
			break
		}
	}
	if isDuplicateKey(err) {
		return nil, fmt.Errorf("append turns for user %d: %w", userID, model.ErrConflict)
	}
	return rows, err
}

func (r *conversationRepository) appendOnce(ctx context.Context, userID uint, turns []model.ConversationTurn) ([]model.ConversationTurn, error) {
	rows := make([]model.ConversationTurn, len(turns))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			return wrapNotFound(err, "user %d", userID)
		}

		var maxSeq int64
		if err := tx.Model(&model.ConversationTurn{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		for i, t := range turns {
			rows[i] = model.ConversationTurn{
				UserID:   userID,
				Seq:      maxSeq + int64(i) + 1,
				Role:     t.Role,
				Content:  t.Content,
				Provider: t.Provider,
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conversationRepository) Recent(ctx context.Context, userID uint, limit int) ([]model.ConversationTurn, error) {
	if limit <= 0 {
		return []model.ConversationTurn{}, nil
	}
	var turns []model.ConversationTurn
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
