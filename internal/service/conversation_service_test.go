package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"catalog-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, f.history)

	for i := 1; i <= 3; i++ {
		_, err := svc.AppendExchange(ctx, u.ID, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), "primary")
		require.NoError(t, err)
	}

	got, err := svc.RecentHistory(ctx, u.ID, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"q2", "a2", "q3", "a3"}, contents(got))
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, "primary", got[3].Provider)
}

func TestConversation_CacheFilledAndInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, f.history)
	key := fmt.Sprintf("conversation:%d:recent", u.ID)

	_, err := svc.Append(ctx, u.ID, model.RoleUser, "primeira")
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(key))

	_, err = svc.RecentHistory(ctx, u.ID, 5)
	require.NoError(t, err)
	assert.True(t, f.mr.Exists(key), "miss fills the cache")

	_, err = svc.Append(ctx, u.ID, model.RoleAssistant, "resposta")
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(key), "append invalidates the cache")

	got, err := svc.RecentHistory(ctx, u.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"primeira", "resposta"}, contents(got))
}

func TestConversation_RedisUnavailableFallsBackToDatabase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, f.history)
	f.mr.Close()

	_, err := svc.AppendExchange(ctx, u.ID, "q", "a", "")
	require.NoError(t, err)

	got, err := svc.RecentHistory(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "a"}, contents(got))
}

func TestConversation_ConcurrentExchangesStayContiguous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, f.history)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AppendExchange(ctx, u.ID, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.RecentHistory(ctx, u.ID, 2*n)
	require.NoError(t, err)
	require.Len(t, got, 2*n)
	for i, turn := range got {
		assert.Equal(t, int64(i+1), turn.Seq)
	}
	// 每个问题后紧跟它自己的回答
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, model.RoleUser, got[i].Role)
		assert.Equal(t, "a"+got[i].Content[1:], got[i+1].Content)
	}
}

func TestConversation_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, nil)

	_, err := svc.Append(ctx, u.ID, model.RoleSystem, "x")
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = svc.Append(ctx, u.ID, model.RoleUser, "   ")
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = svc.AppendExchange(ctx, u.ID, "q", "", "")
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = svc.Append(ctx, 999, model.RoleUser, "x")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	got, err := svc.RecentHistory(ctx, u.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConversation_HistoryDTO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "ana")
	svc := NewConversationService(f.turns, f.history)

	_, err := svc.AppendExchange(ctx, u.ID, "q", "a", "fallback")
	require.NoError(t, err)

	items, err := svc.GetConversationHistory(ctx, u.ID, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.RoleUser, items[0].Role)
	assert.Equal(t, "fallback", items[1].Provider)
	assert.Equal(t, int64(2), items[1].Seq)
}

func contents(turns []model.ConversationTurn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}
