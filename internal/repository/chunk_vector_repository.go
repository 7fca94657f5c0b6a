package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"catalog-assist-go/internal/model"

	"gorm.io/gorm"
)

// ChunkVectorRepository 在关系库中保存分块向量，并在内存中计算余弦相似度。
// 适合未部署 Elasticsearch 的小规模目录。
type ChunkVectorRepository struct {
	db *gorm.DB
}

// NewChunkVectorRepository 创建一个新的 ChunkVectorRepository 实例。
func NewChunkVectorRepository(db *gorm.DB) *ChunkVectorRepository {
	return &ChunkVectorRepository{db: db}
}

// Replace 原子地替换文档的全部向量。
func (r *ChunkVectorRepository) Replace(ctx context.Context, doc model.Document, vectors []model.ChunkVector) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", doc.ID).Delete(&model.ChunkVector{}).Error; err != nil {
			return err
		}
		if len(vectors) == 0 {
			return nil
		}
		rows := make([]model.ChunkVector, len(vectors))
		for i, v := range vectors {
			rows[i] = model.ChunkVector{
				DocumentID:   doc.ID,
				SeqIndex:     v.SeqIndex,
				Embedding:    v.Embedding,
				ModelVersion: v.ModelVersion,
			}
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// Search 返回与 query 余弦相似度最高的 k 个分块。
func (r *ChunkVectorRepository) Search(ctx context.Context, query []float32, modelVersion string, scope model.DocumentScope, k int) ([]model.VectorHit, error) {
	if scope.Empty() || k <= 0 {
		return []model.VectorHit{}, nil
	}
	db := r.db.WithContext(ctx).Model(&model.ChunkVector{}).
		Select("chunk_vectors.*").
		Joins("JOIN documents ON documents.id = chunk_vectors.document_id").
		Where("documents.is_active = ? AND documents.indexed = ?", true, true)
	if !scope.Global {
		db = db.Where("chunk_vectors.document_id IN ?", scope.DocumentIDs)
	}
	if modelVersion != "" {
		db = db.Where("chunk_vectors.model_version = ?", modelVersion)
	}
	var rows []model.ChunkVector
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chunk vectors: %w", err)
	}

	hits := make([]model.VectorHit, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) != len(query) {
			continue
		}
		hits = append(hits, model.VectorHit{
			DocumentID: row.DocumentID,
			SeqIndex:   row.SeqIndex,
			Score:      CosineSimilarity(query, row.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].SeqIndex != hits[j].SeqIndex {
			return hits[i].SeqIndex < hits[j].SeqIndex
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteByDocument 删除文档的全部向量。
func (r *ChunkVectorRepository) DeleteByDocument(ctx context.Context, documentID uint) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.ChunkVector{}).Error
}

// CosineSimilarity 计算两个等长向量的余弦相似度，任一为零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
