package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/storage"
	"catalog-assist-go/pkg/tasks"
)

// Ingester 执行文档入库，由 *pipeline.Processor 实现。
type Ingester interface {
	Process(ctx context.Context, task tasks.IngestTask) error
	Reindex(ctx context.Context, documentID uint) error
}

// IngestPublisher 把入库任务投递到消息队列，由 *kafka.Producer 实现。
type IngestPublisher interface {
	Publish(ctx context.Context, task tasks.IngestTask) (string, error)
}

// ObjectRemover 删除对象存储中的文件，由 *storage.Archive 实现。
type ObjectRemover interface {
	Remove(ctx context.Context, objectName string) error
}

// RegisterDocumentRequest 是登记文档的请求体。
type RegisterDocumentRequest struct {
	FileName      string `json:"fileName" binding:"required"`
	CatalogItemID *uint  `json:"catalogItemId"`
	// ObjectName 是原始文件在对象存储中的路径，可选
	ObjectName string `json:"objectName"`
}

// IngestResult 描述一次入库请求的结果。Async 为 true 时只表示任务已投递。
type IngestResult struct {
	DocumentID uint   `json:"documentId"`
	Async      bool   `json:"async"`
	TaskID     string `json:"taskId,omitempty"`
	ChunkCount int    `json:"chunkCount"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Register(ctx context.Context, req RegisterDocumentRequest) (*model.Document, error)
	Get(ctx context.Context, id uint) (*model.Document, error)
	List(ctx context.Context, catalogItemID *uint) ([]model.Document, error)
	Chunks(ctx context.Context, id uint) ([]model.Chunk, error)
	// Ingest 提交文档文本（或使用已登记的源文件）入库。
	Ingest(ctx context.Context, id uint, text string, async bool) (*IngestResult, error)
	Reindex(ctx context.Context, id uint) (*IngestResult, error)
	// Deactivate 软删除：文档不再参与检索，数据保留。
	Deactivate(ctx context.Context, id uint) error
	// Delete 硬删除文档及其分块、向量与归档文本。
	Delete(ctx context.Context, id uint) error
}

type documentService struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.ChunkRepository
	ingester  Ingester
	publisher IngestPublisher
	vectors   repository.VectorIndex
	objects   ObjectRemover
}

// NewDocumentService 创建一个新的 DocumentService 实例。publisher、vectors、objects 可为 nil。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	ingester Ingester,
	publisher IngestPublisher,
	vectors repository.VectorIndex,
	objects ObjectRemover,
) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		ingester:  ingester,
		publisher: publisher,
		vectors:   vectors,
		objects:   objects,
	}
}

func (s *documentService) Register(ctx context.Context, req RegisterDocumentRequest) (*model.Document, error) {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: fileName is required", model.ErrValidation)
	}
	doc := &model.Document{
		FileName:      fileName,
		ObjectName:    strings.TrimSpace(req.ObjectName),
		CatalogItemID: req.CatalogItemID,
		IsActive:      true,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	log.Infof("[DocumentService] 文档已登记: id=%d, fileName=%s", doc.ID, doc.FileName)
	return doc, nil
}

func (s *documentService) Get(ctx context.Context, id uint) (*model.Document, error) {
	return s.docRepo.FindByID(ctx, id)
}

func (s *documentService) List(ctx context.Context, catalogItemID *uint) ([]model.Document, error) {
	return s.docRepo.List(ctx, catalogItemID)
}

func (s *documentService) Chunks(ctx context.Context, id uint) ([]model.Chunk, error) {
	if _, err := s.docRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByDocument(ctx, id)
}

func (s *documentService) Ingest(ctx context.Context, id uint, text string, async bool) (*IngestResult, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	task := tasks.IngestTask{
		DocumentID:    doc.ID,
		FileName:      doc.FileName,
		ObjectName:    doc.ObjectName,
		ExtractedText: text,
	}

	if async {
		if s.publisher == nil {
			return nil, fmt.Errorf("%w: async ingestion requires kafka", model.ErrValidation)
		}
		taskID, err := s.publisher.Publish(ctx, task)
		if err != nil {
			return nil, err
		}
		return &IngestResult{DocumentID: doc.ID, Async: true, TaskID: taskID}, nil
	}

	if err := s.ingester.Process(ctx, task); err != nil {
		return nil, err
	}
	return s.result(ctx, doc.ID)
}

func (s *documentService) Reindex(ctx context.Context, id uint) (*IngestResult, error) {
	if err := s.ingester.Reindex(ctx, id); err != nil {
		return nil, err
	}
	return s.result(ctx, id)
}

func (s *documentService) result(ctx context.Context, id uint) (*IngestResult, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &IngestResult{DocumentID: doc.ID, ChunkCount: doc.ChunkCount}, nil
}

func (s *documentService) Deactivate(ctx context.Context, id uint) error {
	return s.docRepo.SetActive(ctx, id, false)
}

func (s *documentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunkRepo.PurgeDocument(ctx, id); err != nil {
		return fmt.Errorf("purge document %d: %w", id, err)
	}

	// 关系库之外的副本清理失败只记录日志，文档已不可检索
	if s.vectors != nil {
		if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
			log.Warnf("[DocumentService] 删除文档 %d 的向量失败: %v", id, err)
		}
	}
	if s.objects != nil {
		names := []string{storage.ExtractedObjectName(id)}
		if doc.ObjectName != "" {
			names = append(names, doc.ObjectName)
		}
		for _, name := range names {
			if err := s.objects.Remove(ctx, name); err != nil {
				log.Warnf("[DocumentService] 删除对象 %s 失败: %v", name, err)
			}
		}
	}
	log.Infof("[DocumentService] 文档已删除: id=%d", id)
	return nil
}
