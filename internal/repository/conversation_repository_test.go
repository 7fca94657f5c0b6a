package repository

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

func TestConversationRepository_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	user := seedUser(t, db, "ana")

	rows, err := repo.Append(ctx, user.ID, []model.ConversationTurn{
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleAssistant, Content: "a1", Provider: "deepseek"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Seq)
	assert.Equal(t, int64(2), rows[1].Seq)

	_, err = repo.Append(ctx, user.ID, []model.ConversationTurn{{Role: model.RoleUser, Content: "q2"}})
	require.NoError(t, err)

	recent, err := repo.Recent(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a1", recent[0].Content)
	assert.Equal(t, "deepseek", recent[0].Provider)
	assert.Equal(t, "q2", recent[1].Content)

	none, err := repo.Recent(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConversationRepository_UnknownUser(t *testing.T) {
	repo := NewConversationRepository(newTestDB(t))
	_, err := repo.Append(context.Background(), 7, []model.ConversationTurn{{Role: model.RoleUser, Content: "q"}})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestConversationRepository_UsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	ana := seedUser(t, db, "ana")
	bruno := seedUser(t, db, "bruno")

	_, err := repo.Append(ctx, ana.ID, []model.ConversationTurn{{Role: model.RoleUser, Content: "da ana"}})
	require.NoError(t, err)
	rows, err := repo.Append(ctx, bruno.ID, []model.ConversationTurn{{Role: model.RoleUser, Content: "do bruno"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[0].Seq)

	recent, err := repo.Recent(ctx, ana.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "da ana", recent[0].Content)
}

func TestConversationRepository_ConcurrentExchangesDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewConversationRepository(db)
	user := seedUser(t, db, "ana")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, user.ID, []model.ConversationTurn{
				{Role: model.RoleUser, Content: fmt.Sprintf("q%d", i)},
				{Role: model.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := repo.Recent(ctx, user.ID, 100)
	require.NoError(t, err)
	require.Len(t, turns, 20)
	for i := 0; i < len(turns); i += 2 {
		q, a := turns[i], turns[i+1]
		assert.Equal(t, int64(i+1), q.Seq)
		assert.Equal(t, model.RoleUser, q.Role)
		assert.Equal(t, model.RoleAssistant, a.Role)
		assert.Equal(t, "a"+q.Content[1:], a.Content, "question and answer must be adjacent")
	}
}
