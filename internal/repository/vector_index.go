package repository

import (
	"context"

	"catalog-assist-go/internal/model"
)

// VectorIndex 保存分块向量并支持相似度检索。
// 关系库实现为 ChunkVectorRepository，启用 Elasticsearch 时使用 es.VectorIndex。
type VectorIndex interface {
	Replace(ctx context.Context, doc model.Document, vectors []model.ChunkVector) error
	// Search 只比较 modelVersion 相同的向量，modelVersion 为空时不限版本。
	Search(ctx context.Context, query []float32, modelVersion string, scope model.DocumentScope, k int) ([]model.VectorHit, error)
	DeleteByDocument(ctx context.Context, documentID uint) error
}

var _ VectorIndex = (*ChunkVectorRepository)(nil)
