package service

import (
	"context"
	"testing"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	users   repository.UserRepository
	catalog repository.CatalogRepository
	docs    repository.DocumentRepository
	chunks  repository.ChunkRepository
	turns   repository.ConversationRepository
	rdb     *redis.Client
	mr      *miniredis.Miniredis
	history repository.HistoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenDB(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.CloseDB(db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &fixture{
		db:      db,
		users:   repository.NewUserRepository(db),
		catalog: repository.NewCatalogRepository(db),
		docs:    repository.NewDocumentRepository(db),
		chunks:  repository.NewChunkRepository(db),
		turns:   repository.NewConversationRepository(db),
		rdb:     rdb,
		mr:      mr,
		history: repository.NewHistoryCache(rdb),
	}
}

func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Role: "USER"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) item(t *testing.T, code string) *model.CatalogItem {
	t.Helper()
	item := &model.CatalogItem{Code: code, Name: "Equipamento " + code, Category: "embalagem"}
	require.NoError(t, f.catalog.Create(context.Background(), item))
	return item
}

// document 登记文档并写入分块，contents[i] 对应序号 i。
func (f *fixture) document(t *testing.T, fileName string, catalogItemID *uint, contents ...string) *model.Document {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{FileName: fileName, CatalogItemID: catalogItemID, IsActive: true}
	require.NoError(t, f.docs.Create(ctx, doc))
	if len(contents) > 0 {
		chunks := make([]model.Chunk, len(contents))
		for i, c := range contents {
			chunks[i] = model.Chunk{SeqIndex: i, Content: c}
		}
		require.NoError(t, f.chunks.Put(ctx, doc.ID, chunks))
	}
	return doc
}

func (f *fixture) retrieval(t *testing.T, cfg config.RetrievalConfig) RetrievalService {
	t.Helper()
	svc, err := NewRetrievalService(cfg, f.catalog, f.docs, f.chunks, nil, nil)
	require.NoError(t, err)
	return svc
}

func lexicalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Strategy:       "lexical",
		MaxResults:     8,
		CandidateLimit: 500,
		PhraseBonus:    2.0,
		TitleBonus:     0.5,
		BudgetChars:    6000,
		CharsPerToken:  4,
	}
}

func uintPtr(v uint) *uint { return &v }
