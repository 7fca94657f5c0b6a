package model

import "fmt"

// EsDocument 定义了存储在 Elasticsearch 中的分块向量文档。
type EsDocument struct {
	VectorID      string    `json:"vector_id"` // documentId_seqIndex
	DocumentID    uint      `json:"document_id"`
	SeqIndex      int       `json:"seq_index"`
	CatalogItemID uint      `json:"catalog_item_id"`
	Vector        []float32 `json:"vector"`
	ModelVersion  string    `json:"model_version"`
}

// VectorDocumentID 生成分块在向量索引中的唯一 ID。
func VectorDocumentID(documentID uint, seqIndex int) string {
	return fmt.Sprintf("%d_%d", documentID, seqIndex)
}

// VectorHit 是向量检索的一条命中。
type VectorHit struct {
	DocumentID uint
	SeqIndex   int
	Score      float64
}

// RetrievedChunk 是检索器返回的一条带分数的分块。
type RetrievedChunk struct {
	DocumentID uint    `json:"documentId"`
	FileName   string  `json:"fileName"`
	SeqIndex   int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Length 返回分块内容的字符数。
func (c RetrievedChunk) Length() int {
	return RuneLength(c.Content)
}

// SourceRef 标识回答引用的分块。
type SourceRef struct {
	DocumentID uint `json:"documentId"`
	ChunkIndex int  `json:"chunkIndex"`
}
