package repository

import (
	"context"
	"fmt"

	"catalog-assist-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository 定义了 catalog_items 表的数据操作接口。
type CatalogRepository interface {
	Create(ctx context.Context, item *model.CatalogItem) error
	FindByID(ctx context.Context, id uint) (*model.CatalogItem, error)
	FindByCode(ctx context.Context, code string) (*model.CatalogItem, error)
	List(ctx context.Context, category string) ([]model.CatalogItem, error)
	// Delete 仍有文档引用该目录项时返回 ErrConflict，不会孤立文档。
	Delete(ctx context.Context, id uint) error
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建一个新的 CatalogRepository 实例。
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Create(ctx context.Context, item *model.CatalogItem) error {
	err := r.db.WithContext(ctx).Create(item).Error
	if isDuplicateKey(err) {
		return fmt.Errorf("catalog code %q: %w", item.Code, model.ErrConflict)
	}
	return err
}

func (r *catalogRepository) FindByID(ctx context.Context, id uint) (*model.CatalogItem, error) {
	var item model.CatalogItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, wrapNotFound(err, "catalog item %d", id)
	}
	return &item, nil
}

func (r *catalogRepository) FindByCode(ctx context.Context, code string) (*model.CatalogItem, error) {
	var item model.CatalogItem
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&item).Error; err != nil {
		return nil, wrapNotFound(err, "catalog code %q", code)
	}
	return &item, nil
}

func (r *catalogRepository) List(ctx context.Context, category string) ([]model.CatalogItem, error) {
	db := r.db.WithContext(ctx).Order("code")
	if category != "" {
		db = db.Where("category = ?", category)
	}
	var items []model.CatalogItem
	err := db.Find(&items).Error
	return items, err
}

func (r *catalogRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CatalogItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error; err != nil {
			return wrapNotFound(err, "catalog item %d", id)
		}
		var refs int64
		if err := tx.Model(&model.Document{}).Where("catalog_item_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("catalog item %q is referenced by %d documents: %w", item.Code, refs, model.ErrConflict)
		}
		return tx.Delete(&item).Error
	})
}
