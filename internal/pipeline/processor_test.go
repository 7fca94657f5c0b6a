package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/database"
	"catalog-assist-go/pkg/storage"
	"catalog-assist-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

type memArchive struct {
	mu      sync.Mutex
	objects map[string]string
}

func newMemArchive() *memArchive { return &memArchive{objects: map[string]string{}} }

func (a *memArchive) Open(_ context.Context, objectName string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.objects[objectName]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (a *memArchive) PutText(_ context.Context, objectName, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[objectName] = text
	return nil
}

func (a *memArchive) GetText(ctx context.Context, objectName string) (string, error) {
	r, err := a.Open(ctx, objectName)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

func (a *memArchive) Remove(_ context.Context, objectName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, objectName)
	return nil
}

// upperExtractor 模拟 Tika：把原始内容转成大写作为提取结果。
type upperExtractor struct{ calls int }

func (e *upperExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	e.calls++
	b, err := io.ReadAll(r)
	return strings.ToUpper(string(b)), err
}

type lengthEmbedder struct {
	fail bool
}

func (e lengthEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding service unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (lengthEmbedder) ModelVersion() string { return "length@2" }

type env struct {
	db     *gorm.DB
	docs   repository.DocumentRepository
	chunks repository.ChunkRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.OpenDB(config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: ":memory:"}})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.CloseDB(db) })
	return &env{db: db, docs: repository.NewDocumentRepository(db), chunks: repository.NewChunkRepository(db)}
}

func (e *env) register(t *testing.T, fileName, objectName string) *model.Document {
	t.Helper()
	doc := &model.Document{FileName: fileName, ObjectName: objectName, IsActive: true}
	require.NoError(t, e.docs.Create(context.Background(), doc))
	return doc
}

var smallChunks = ChunkConfig{MaxSize: 200, Overlap: 20}

func TestProcess_TextIsNormalizedChunkedAndArchived(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	archive := newMemArchive()
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithArchive(archive))
	require.NoError(t, err)
	doc := e.register(t, "manual.txt", "")

	decomposed := norm.NFD.String("seladora de indução")
	require.NotEqual(t, "seladora de indução", decomposed)

	require.NoError(t, p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ExtractedText: decomposed}))

	chunks, err := e.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "seladora de indução", chunks[0].Content)
	assert.Equal(t, "seladora de indução", archive.objects[storage.ExtractedObjectName(doc.ID)])

	got, err := e.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Indexed)
	assert.Equal(t, 1, got.ChunkCount)
}

func TestProcess_ExtractsFromSourceObject(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	archive := newMemArchive()
	archive.objects["raw/ficha.pdf"] = "esteira modular"
	extractor := &upperExtractor{}
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithArchive(archive), WithExtractor(extractor))
	require.NoError(t, err)
	doc := e.register(t, "ficha.pdf", "raw/ficha.pdf")

	require.NoError(t, p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID}))
	assert.Equal(t, 1, extractor.calls)

	chunks, err := e.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ESTEIRA MODULAR", chunks[0].Content)
}

func TestProcess_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	archive := newMemArchive()
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithArchive(archive), WithExtractor(&upperExtractor{}))
	require.NoError(t, err)

	missing := e.register(t, "a.pdf", "raw/missing.pdf")
	err = p.Process(ctx, tasks.IngestTask{DocumentID: missing.ID})
	assert.True(t, errors.Is(err, model.ErrNotFound))

	blank := e.register(t, "b.txt", "")
	err = p.Process(ctx, tasks.IngestTask{DocumentID: blank.ID, ExtractedText: " \n\t"})
	assert.True(t, errors.Is(err, model.ErrValidation))

	err = p.Process(ctx, tasks.IngestTask{DocumentID: 999, ExtractedText: "x"})
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = NewProcessor(e.docs, e.chunks, ChunkConfig{MaxSize: 10, Overlap: 10})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestProcess_WritesVectors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	vectors := repository.NewChunkVectorRepository(e.db)
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithEmbedding(lengthEmbedder{}, vectors, 2))
	require.NoError(t, err)
	doc := e.register(t, "catalog-sheet-1", "")

	require.NoError(t, p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ExtractedText: strings.Repeat("abcdefghij", 60)}))

	var rows []model.ChunkVector
	require.NoError(t, e.db.Where("document_id = ?", doc.ID).Order("seq_index").Find(&rows).Error)
	require.Len(t, rows, 4)
	for i, r := range rows {
		assert.Equal(t, i, r.SeqIndex)
		assert.Equal(t, "length@2", r.ModelVersion)
		assert.Len(t, r.Embedding, 2)
	}
}

func TestProcess_EmbeddingFailureIsReported(t *testing.T) {
	e := newEnv(t)
	vectors := repository.NewChunkVectorRepository(e.db)
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithEmbedding(lengthEmbedder{fail: true}, vectors, 2))
	require.NoError(t, err)
	doc := e.register(t, "a.txt", "")

	err = p.Process(context.Background(), tasks.IngestTask{DocumentID: doc.ID, ExtractedText: "seladora"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service unavailable")
}

// trackingIndex 记录 DeleteByDocument 调用，模拟独立于关系库的向量索引。
type trackingIndex struct {
	repository.VectorIndex
	deleted []uint
}

func (i *trackingIndex) DeleteByDocument(ctx context.Context, documentID uint) error {
	i.deleted = append(i.deleted, documentID)
	return i.VectorIndex.DeleteByDocument(ctx, documentID)
}

func TestProcess_ReingestDropsOldVectors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	index := &trackingIndex{VectorIndex: repository.NewChunkVectorRepository(e.db)}
	doc := e.register(t, "manual.txt", "")

	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithEmbedding(lengthEmbedder{}, index, 2))
	require.NoError(t, err)
	require.NoError(t, p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ExtractedText: strings.Repeat("abcdefghij", 60)}))

	var count int64
	require.NoError(t, e.db.Model(&model.ChunkVector{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	require.EqualValues(t, 4, count)

	// 重新切块后嵌入失败：旧向量不能留下来对应到新内容上
	failing, err := NewProcessor(e.docs, e.chunks, smallChunks, WithEmbedding(lengthEmbedder{fail: true}, index, 2))
	require.NoError(t, err)
	require.Error(t, failing.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ExtractedText: "texto novo e curto"}))

	require.NoError(t, e.db.Model(&model.ChunkVector{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, []uint{doc.ID, doc.ID}, index.deleted)

	chunks, err := e.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "texto novo e curto", chunks[0].Content)
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	archive := newMemArchive()
	p, err := NewProcessor(e.docs, e.chunks, smallChunks, WithArchive(archive))
	require.NoError(t, err)
	doc := e.register(t, "a.txt", "")

	err = p.Reindex(ctx, doc.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "nothing archived yet")

	require.NoError(t, p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ExtractedText: "texto original"}))
	require.NoError(t, e.chunks.DeleteByDocument(ctx, doc.ID))

	require.NoError(t, p.Reindex(ctx, doc.ID))
	chunks, err := e.chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "texto original", chunks[0].Content)

	noArchive, err := NewProcessor(e.docs, e.chunks, smallChunks)
	require.NoError(t, err)
	assert.True(t, errors.Is(noArchive.Reindex(ctx, doc.ID), model.ErrValidation))
}
