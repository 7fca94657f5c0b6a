// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Document 对应 documents 表，记录一份已登记的产品文档。
// Indexed 只在写入全部分块的同一事务中由 false 置为 true；ChunkCount 每次由分块行数重新计算。
type Document struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName      string    `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName    string    `gorm:"type:varchar(255)" json:"objectName,omitempty"`
	CatalogItemID *uint     `gorm:"index" json:"catalogItemId"`
	Indexed       bool      `gorm:"not null" json:"indexed"`
	IsActive      bool      `gorm:"not null;index" json:"isActive"`
	ChunkCount    int       `gorm:"not null" json:"chunkCount"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Chunk 对应 document_chunks 表。同一文档内 SeqIndex 从 0 开始连续且唯一。
type Chunk struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID    uint   `gorm:"not null;uniqueIndex:idx_chunk_doc_seq,priority:1" json:"documentId"`
	SeqIndex      int    `gorm:"not null;uniqueIndex:idx_chunk_doc_seq,priority:2" json:"index"`
	Content       string `gorm:"type:text;not null" json:"content"`
	// SearchContent 是 FoldText(Content)，匹配时不依赖数据库的大小写规则
	SearchContent string `gorm:"type:text" json:"-"`
	Length        int    `gorm:"not null" json:"length"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "document_chunks"
}

// ChunkKey 唯一定位一个分块。
type ChunkKey struct {
	DocumentID uint
	SeqIndex   int
}

// Key 返回分块的定位键。
func (c Chunk) Key() ChunkKey {
	return ChunkKey{DocumentID: c.DocumentID, SeqIndex: c.SeqIndex}
}

// FoldText 做 NFC 规范化并按 Unicode 规则转小写，写入与查询两侧使用同一折叠方式。
func FoldText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// RuneLength 以字符（rune）计的长度，预算统一按字符计算。
func RuneLength(s string) int {
	return utf8.RuneCountInString(s)
}

// DocumentScope 限定查询涉及的文档。Global 为 true 时不限文档，否则只查 DocumentIDs。
type DocumentScope struct {
	DocumentIDs []uint
	Global      bool
}

// Empty 判断非全局范围下是否没有任何文档。
func (s DocumentScope) Empty() bool {
	return !s.Global && len(s.DocumentIDs) == 0
}
