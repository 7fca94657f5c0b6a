package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/log"
)

// CreateCatalogItemRequest 是登记目录条目的请求体。
type CreateCatalogItemRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category" binding:"required"`
	Description string `json:"description"`
}

// CatalogService 管理目录条目。
type CatalogService interface {
	Create(ctx context.Context, req CreateCatalogItemRequest) (*model.CatalogItem, error)
	Get(ctx context.Context, id uint) (*model.CatalogItem, error)
	List(ctx context.Context, category string) ([]model.CatalogItem, error)
	// Documents 返回引用该条目的文档。
	Documents(ctx context.Context, id uint) ([]model.Document, error)
	// Delete 在仍有文档引用该条目时返回 ErrConflict。
	Delete(ctx context.Context, id uint) error
}

type catalogService struct {
	catalogRepo repository.CatalogRepository
	docRepo     repository.DocumentRepository
}

// NewCatalogService 创建一个新的 CatalogService 实例。
func NewCatalogService(catalogRepo repository.CatalogRepository, docRepo repository.DocumentRepository) CatalogService {
	return &catalogService{catalogRepo: catalogRepo, docRepo: docRepo}
}

func (s *catalogService) Create(ctx context.Context, req CreateCatalogItemRequest) (*model.CatalogItem, error) {
	item := &model.CatalogItem{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
	}
	if item.Code == "" || item.Name == "" || item.Category == "" {
		return nil, fmt.Errorf("%w: code, name and category are required", model.ErrValidation)
	}
	if err := s.catalogRepo.Create(ctx, item); err != nil {
		return nil, err
	}
	log.Infof("[CatalogService] 目录条目已登记: id=%d, code=%s", item.ID, item.Code)
	return item, nil
}

func (s *catalogService) Get(ctx context.Context, id uint) (*model.CatalogItem, error) {
	return s.catalogRepo.FindByID(ctx, id)
}

func (s *catalogService) List(ctx context.Context, category string) ([]model.CatalogItem, error) {
	return s.catalogRepo.List(ctx, strings.TrimSpace(category))
}

func (s *catalogService) Documents(ctx context.Context, id uint) ([]model.Document, error) {
	if _, err := s.catalogRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.docRepo.List(ctx, &id)
}

func (s *catalogService) Delete(ctx context.Context, id uint) error {
	return s.catalogRepo.Delete(ctx, id)
}
