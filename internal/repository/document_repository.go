package repository

import (
	"context"
	"fmt"

	"catalog-assist-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository 定义了 documents 表的数据操作接口。
type DocumentRepository interface {
	// Create 登记文档；CatalogItemID 非空时必须引用已存在的目录项。
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	FindByFileName(ctx context.Context, fileName string) (*model.Document, error)
	List(ctx context.Context, catalogItemID *uint) ([]model.Document, error)
	IDsByCatalogItem(ctx context.Context, catalogItemID uint) ([]uint, error)
	FileNames(ctx context.Context, ids []uint) (map[uint]string, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if doc.CatalogItemID != nil {
			var item model.CatalogItem
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").First(&item, *doc.CatalogItemID).Error
			if err != nil {
				return wrapNotFound(err, "catalog item %d", *doc.CatalogItemID)
			}
		}
		// 新文档总是未索引，且只能经由 ChunkRepository.Put 置为已索引
		doc.Indexed = false
		doc.ChunkCount = 0
		return tx.Create(doc).Error
	})
}

func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, wrapNotFound(err, "document %d", id)
	}
	return &doc, nil
}

func (r *documentRepository) FindByFileName(ctx context.Context, fileName string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("file_name = ?", fileName).First(&doc).Error; err != nil {
		return nil, wrapNotFound(err, "document %q", fileName)
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, catalogItemID *uint) ([]model.Document, error) {
	db := r.db.WithContext(ctx).Order("id")
	if catalogItemID != nil {
		db = db.Where("catalog_item_id = ?", *catalogItemID)
	}
	var docs []model.Document
	err := db.Find(&docs).Error
	return docs, err
}

func (r *documentRepository) IDsByCatalogItem(ctx context.Context, catalogItemID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("catalog_item_id = ?", catalogItemID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// FileNames 批量查询文件名，避免逐条查询。
func (r *documentRepository) FileNames(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var docs []model.Document
	if err := r.db.WithContext(ctx).Select("id", "file_name").Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("batch load file names: %w", err)
	}
	for _, d := range docs {
		names[d.ID] = d.FileName
	}
	return names, nil
}

func (r *documentRepository) SetActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	return nil
}
