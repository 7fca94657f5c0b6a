package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-assist-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	// HistoryCacheSize 是缓存中保留的最近轮次数。
	HistoryCacheSize = 20
	historyCacheTTL  = 7 * 24 * time.Hour
)

// HistoryCache 在 Redis 中缓存每个用户最近的对话轮次，数据库是唯一的事实来源。
type HistoryCache interface {
	// Get 返回缓存的轮次；未命中时 ok 为 false。
	Get(ctx context.Context, userID uint) (turns []model.ConversationTurn, ok bool, err error)
	Set(ctx context.Context, userID uint, turns []model.ConversationTurn) error
	Invalidate(ctx context.Context, userID uint) error
}

type redisHistoryCache struct {
	redisClient *redis.Client
}

// NewHistoryCache 创建一个新的 HistoryCache 实例。
func NewHistoryCache(redisClient *redis.Client) HistoryCache {
	return &redisHistoryCache{redisClient: redisClient}
}

func historyKey(userID uint) string {
	return fmt.Sprintf("conversation:%d:recent", userID)
}

// Get 从 Redis 获取对话历史记录。
func (c *redisHistoryCache) Get(ctx context.Context, userID uint) ([]model.ConversationTurn, bool, error) {
	jsonData, err := c.redisClient.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var turns []model.ConversationTurn
	if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return turns, true, nil
}

// Set 写入最近 HistoryCacheSize 条轮次。
func (c *redisHistoryCache) Set(ctx context.Context, userID uint, turns []model.ConversationTurn) error {
	if len(turns) > HistoryCacheSize {
		turns = turns[len(turns)-HistoryCacheSize:]
	}
	jsonData, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := c.redisClient.Set(ctx, historyKey(userID), jsonData, historyCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// Invalidate 删除用户的缓存。
func (c *redisHistoryCache) Invalidate(ctx context.Context, userID uint) error {
	return c.redisClient.Del(ctx, historyKey(userID)).Err()
}
