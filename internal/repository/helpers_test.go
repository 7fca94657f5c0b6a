package repository

import (
	"context"
	"fmt"
	"testing"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenDB(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.CloseDB(db) })
	return db
}

func seedDocument(t *testing.T, db *gorm.DB, fileName string, catalogItemID *uint) *model.Document {
	t.Helper()
	doc := &model.Document{FileName: fileName, IsActive: true, CatalogItemID: catalogItemID}
	require.NoError(t, NewDocumentRepository(db).Create(context.Background(), doc))
	return doc
}

func seedUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Role: "USER"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func makeChunks(contents ...string) []model.Chunk {
	chunks := make([]model.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = model.Chunk{SeqIndex: i, Content: c}
	}
	return chunks
}

func numberedChunks(n int) []model.Chunk {
	contents := make([]string, n)
	for i := range contents {
		contents[i] = fmt.Sprintf("trecho %d", i)
	}
	return makeChunks(contents...)
}
