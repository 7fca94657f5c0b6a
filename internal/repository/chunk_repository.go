package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/keylock"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SearchQuery 描述一次内容扫描：大小写不敏感的子串匹配，MatchAll 为 true 时要求包含全部词。
// 返回全部命中行，截断交给调用方在打分之后进行。
type SearchQuery struct {
	Terms    []string
	MatchAll bool
}

// ChunkRepository 是文档分块的持久化存储。
// 同一文档上的 Put、DeleteByDocument、PurgeDocument 互斥；读操作不加锁。
type ChunkRepository interface {
	// Put 原子地替换文档的全部分块，清除旧向量，并在同一事务中重算 chunk_count、置 indexed=true。
	Put(ctx context.Context, documentID uint, chunks []model.Chunk) error
	ListByDocument(ctx context.Context, documentID uint) ([]model.Chunk, error)
	// Search 只返回处于启用且已索引状态的文档中的分块。
	Search(ctx context.Context, query SearchQuery, scope model.DocumentScope) ([]model.Chunk, error)
	FindByKeys(ctx context.Context, keys []model.ChunkKey) ([]model.Chunk, error)
	// DeleteByDocument 删除分块并把文档恢复为未索引。
	DeleteByDocument(ctx context.Context, documentID uint) error
	// PurgeDocument 删除文档本身及其分块与向量。
	PurgeDocument(ctx context.Context, documentID uint) error
}

type chunkRepository struct {
	db    *gorm.DB
	locks keylock.Map[uint]
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// validateSequence 要求序号恰好为 0..n-1 且内容非空。
func validateSequence(chunks []model.Chunk) error {
	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.SeqIndex]; dup {
			return fmt.Errorf("%w: duplicate chunk index %d", model.ErrConflict, c.SeqIndex)
		}
		seen[c.SeqIndex] = struct{}{}
		if c.Content == "" {
			return fmt.Errorf("%w: chunk %d has empty content", model.ErrValidation, c.SeqIndex)
		}
	}
	for i := range chunks {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("%w: chunk indices must be contiguous from 0, missing %d", model.ErrValidation, i)
		}
	}
	return nil
}

func (r *chunkRepository) Put(ctx context.Context, documentID uint, chunks []model.Chunk) error {
	if err := validateSequence(chunks); err != nil {
		return err
	}
	rows := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Chunk{
			DocumentID:    documentID,
			SeqIndex:      c.SeqIndex,
			Content:       c.Content,
			SearchContent: model.FoldText(c.Content),
			Length:        model.RuneLength(c.Content),
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SeqIndex < rows[j].SeqIndex })

	unlock := r.locks.Lock(documentID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, documentID); err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		// 旧向量按 (document_id, seq_index) 对应旧内容，不能挂到新分块上
		if err := tx.Where("document_id = ?", documentID).Delete(&model.ChunkVector{}).Error; err != nil {
			return fmt.Errorf("delete old vectors: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				if isDuplicateKey(err) {
					return fmt.Errorf("%w: %v", model.ErrConflict, err)
				}
				return fmt.Errorf("insert chunks: %w", err)
			}
		}
		return refreshDocumentState(tx, documentID, true)
	})
}

// lockDocument 确认文档存在，并在支持的方言上对文档行加写锁。
func lockDocument(tx *gorm.DB, documentID uint) error {
	var doc model.Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&doc, documentID).Error
	return wrapNotFound(err, "document %d", documentID)
}

// refreshDocumentState 按实际分块行数回写 chunk_count。
func refreshDocumentState(tx *gorm.DB, documentID uint, indexed bool) error {
	var count int64
	if err := tx.Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	return tx.Model(&model.Document{}).Where("id = ?", documentID).Updates(map[string]interface{}{
		"chunk_count": count,
		"indexed":     indexed,
	}).Error
}

func (r *chunkRepository) ListByDocument(ctx context.Context, documentID uint) ([]model.Chunk, error) {
	db := r.db.WithContext(ctx)
	var doc model.Document
	if err := db.Select("id").First(&doc, documentID).Error; err != nil {
		return nil, wrapNotFound(err, "document %d", documentID)
	}
	var chunks []model.Chunk
	err := db.Where("document_id = ?", documentID).Order("seq_index").Find(&chunks).Error
	return chunks, err
}

// searchable 限定为启用且已索引的文档。
func (r *chunkRepository) searchable(ctx context.Context, scope model.DocumentScope) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Select("document_chunks.*").
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.is_active = ? AND documents.indexed = ?", true, true)
	if !scope.Global {
		db = db.Where("document_chunks.document_id IN ?", scope.DocumentIDs)
	}
	return db
}

func (r *chunkRepository) Search(ctx context.Context, query SearchQuery, scope model.DocumentScope) ([]model.Chunk, error) {
	var terms []string
	for _, t := range query.Terms {
		if t = model.FoldText(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 || scope.Empty() {
		return []model.Chunk{}, nil
	}

	const cond = "document_chunks.search_content LIKE ? ESCAPE '!'"
	db := r.searchable(ctx, scope)
	if query.MatchAll {
		for _, t := range terms {
			db = db.Where(cond, "%"+escapeLike(t)+"%")
		}
	} else {
		group := r.db.Where(cond, "%"+escapeLike(terms[0])+"%")
		for _, t := range terms[1:] {
			group = group.Or(cond, "%"+escapeLike(t)+"%")
		}
		db = db.Where(group)
	}
	db = db.Order("document_chunks.document_id").Order("document_chunks.seq_index")

	var chunks []model.Chunk
	if err := db.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return chunks, nil
}

func (r *chunkRepository) FindByKeys(ctx context.Context, keys []model.ChunkKey) ([]model.Chunk, error) {
	if len(keys) == 0 {
		return []model.Chunk{}, nil
	}
	byDoc := make(map[uint][]int)
	var docIDs []uint
	for _, k := range keys {
		if _, ok := byDoc[k.DocumentID]; !ok {
			docIDs = append(docIDs, k.DocumentID)
		}
		byDoc[k.DocumentID] = append(byDoc[k.DocumentID], k.SeqIndex)
	}

	group := r.db.Where("document_chunks.document_id = ? AND document_chunks.seq_index IN ?", docIDs[0], byDoc[docIDs[0]])
	for _, id := range docIDs[1:] {
		group = group.Or("document_chunks.document_id = ? AND document_chunks.seq_index IN ?", id, byDoc[id])
	}

	var chunks []model.Chunk
	err := r.searchable(ctx, model.DocumentScope{Global: true}).Where(group).Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) DeleteByDocument(ctx context.Context, documentID uint) error {
	unlock := r.locks.Lock(documentID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, documentID); err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.ChunkVector{}).Error; err != nil {
			return err
		}
		return refreshDocumentState(tx, documentID, false)
	})
}

func (r *chunkRepository) PurgeDocument(ctx context.Context, documentID uint) error {
	unlock := r.locks.Lock(documentID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, documentID); err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.ChunkVector{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, documentID).Error
	})
}
