package model

// ChunkVector 对应 chunk_vectors 表，未启用 Elasticsearch 时在关系库中保存分块向量。
type ChunkVector struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	DocumentID   uint      `gorm:"not null;uniqueIndex:idx_vec_doc_seq,priority:1"`
	SeqIndex     int       `gorm:"not null;uniqueIndex:idx_vec_doc_seq,priority:2"`
	Embedding    []float32 `gorm:"type:text;serializer:json"`
	ModelVersion string    `gorm:"type:varchar(64)"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChunkVector) TableName() string {
	return "chunk_vectors"
}
