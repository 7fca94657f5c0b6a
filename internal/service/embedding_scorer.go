package service

import (
	"context"
	"fmt"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/embedding"
)

// embeddingScorer 以查询向量与分块向量的余弦相似度作为分数。
type embeddingScorer struct {
	client         embedding.Client
	vectors        repository.VectorIndex
	chunkRepo      repository.ChunkRepository
	docRepo        repository.DocumentRepository
	candidateLimit int
}

func (s *embeddingScorer) score(ctx context.Context, query string, scope model.DocumentScope) ([]model.RetrievedChunk, error) {
	vec, err := s.client.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	// 只与当前模型生成的向量比较，旧模型的向量等待重建索引
	hits, err := s.vectors.Search(ctx, vec, s.client.ModelVersion(), scope, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	keys := make([]model.ChunkKey, len(hits))
	for i, h := range hits {
		keys[i] = model.ChunkKey{DocumentID: h.DocumentID, SeqIndex: h.SeqIndex}
	}
	// 向量索引可能落后于分块表，以分块表中仍可检索的内容为准
	chunks, err := s.chunkRepo.FindByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byKey := make(map[model.ChunkKey]model.Chunk, len(chunks))
	for _, c := range chunks {
		byKey[c.Key()] = c
	}
	fileNames, err := loadFileNames(ctx, s.docRepo, chunks)
	if err != nil {
		return nil, err
	}

	scored := make([]model.RetrievedChunk, 0, len(hits))
	for i, h := range hits {
		c, ok := byKey[keys[i]]
		if !ok {
			continue
		}
		scored = append(scored, model.RetrievedChunk{
			DocumentID: c.DocumentID,
			FileName:   fileNames[c.DocumentID],
			SeqIndex:   c.SeqIndex,
			Content:    c.Content,
			Score:      h.Score,
		})
	}
	return scored, nil
}
