package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"catalog-assist-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestHistoryCache_RoundTripAndTrim(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	cache := NewHistoryCache(rdb)

	_, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	turns := make([]model.ConversationTurn, 25)
	for i := range turns {
		turns[i] = model.ConversationTurn{UserID: 1, Seq: int64(i + 1), Role: model.RoleUser, Content: fmt.Sprintf("m%d", i+1)}
	}
	require.NoError(t, cache.Set(ctx, 1, turns))

	got, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, HistoryCacheSize)
	assert.Equal(t, "m6", got[0].Content)
	assert.Equal(t, "m25", got[len(got)-1].Content)

	assert.Equal(t, 7*24*time.Hour, mr.TTL("conversation:1:recent"))

	require.NoError(t, cache.Invalidate(ctx, 1))
	_, ok, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryCache_CorruptPayload(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("conversation:3:recent", "not-json"))

	_, ok, err := NewHistoryCache(rdb).Get(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, ok)
}
