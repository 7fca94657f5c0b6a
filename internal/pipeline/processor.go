// Package pipeline 定义了文档入库的核心流程：提取文本、切块、写入分块存储、生成向量。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/embedding"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/storage"
	"catalog-assist-go/pkg/tasks"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// TextArchive 是对象存储中原始文件与提取文本的读写接口，由 *storage.Archive 实现。
type TextArchive interface {
	Open(ctx context.Context, objectName string) (io.ReadCloser, error)
	PutText(ctx context.Context, objectName, text string) error
	GetText(ctx context.Context, objectName string) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// TextExtractor 从原始文件中提取纯文本，由 *tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Processor 封装了文档入库的所有依赖和逻辑。archive、extractor、embedder、vectors 均可为 nil。
type Processor struct {
	docRepo     repository.DocumentRepository
	chunkRepo   repository.ChunkRepository
	chunkCfg    ChunkConfig
	archive     TextArchive
	extractor   TextExtractor
	embedder    embedding.Client
	vectors     repository.VectorIndex
	concurrency int
}

// Option 配置 Processor 的可选依赖。
type Option func(*Processor)

// WithArchive 启用对象存储：原始文件从中读取，提取文本归档到其中。
func WithArchive(a TextArchive) Option { return func(p *Processor) { p.archive = a } }

// WithExtractor 启用原始文件的文本提取。
func WithExtractor(e TextExtractor) Option { return func(p *Processor) { p.extractor = e } }

// WithEmbedding 启用分块向量化，concurrency 限制并发请求数。
func WithEmbedding(client embedding.Client, vectors repository.VectorIndex, concurrency int) Option {
	return func(p *Processor) {
		p.embedder = client
		p.vectors = vectors
		p.concurrency = concurrency
	}
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(docRepo repository.DocumentRepository, chunkRepo repository.ChunkRepository, chunkCfg ChunkConfig, opts ...Option) (*Processor, error) {
	if err := chunkCfg.Validate(); err != nil {
		return nil, err
	}
	p := &Processor{docRepo: docRepo, chunkRepo: chunkRepo, chunkCfg: chunkCfg, concurrency: 4}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	return p, nil
}

// Process 是文档入库的主函数。重复处理同一文档会整体替换其分块与向量。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %d, FileName: %s", task.DocumentID, task.FileName)

	doc, err := p.docRepo.FindByID(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	// 1. 获取文本
	text := task.ExtractedText
	if text == "" {
		if text, err = p.extract(ctx, doc, task); err != nil {
			return err
		}
	}
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: document %d has no text", model.ErrValidation, doc.ID)
	}
	log.Infof("[Processor] 步骤1: 文本就绪, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 归档提取文本，供重建索引使用
	if p.archive != nil {
		if err := p.archive.PutText(ctx, storage.ExtractedObjectName(doc.ID), text); err != nil {
			return fmt.Errorf("归档提取文本失败: %w", err)
		}
	}

	// 3. 切块并替换分块
	pieces, err := Chunk(text, p.chunkCfg)
	if err != nil {
		return err
	}
	chunks := ToChunks(doc.ID, pieces)
	// 旧向量与旧分块一一对应，先清掉，嵌入失败时宁可没有向量也不能错配
	if p.vectors != nil {
		if err := p.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("清除旧向量失败: %w", err)
		}
	}
	if err := p.chunkRepo.Put(ctx, doc.ID, chunks); err != nil {
		log.Errorf("[Processor] 保存分块失败, DocumentID: %d, Error: %v", doc.ID, err)
		return fmt.Errorf("保存分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 成功保存 %d 个分块", len(chunks))

	// 4. 向量化
	if p.embedder != nil && p.vectors != nil {
		if err := p.embed(ctx, *doc, chunks); err != nil {
			return err
		}
	}

	log.Infof("[Processor] 文档处理成功完成, DocumentID: %d", doc.ID)
	return nil
}

// Reindex 使用归档的提取文本重新入库。
func (p *Processor) Reindex(ctx context.Context, documentID uint) error {
	if p.archive == nil {
		return fmt.Errorf("%w: reindex requires object storage", model.ErrValidation)
	}
	doc, err := p.docRepo.FindByID(ctx, documentID)
	if err != nil {
		return err
	}
	text, err := p.archive.GetText(ctx, storage.ExtractedObjectName(documentID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("extracted text of document %d: %w", documentID, model.ErrNotFound)
		}
		return err
	}
	return p.Process(ctx, tasks.IngestTask{DocumentID: doc.ID, FileName: doc.FileName, ExtractedText: text})
}

func (p *Processor) extract(ctx context.Context, doc *model.Document, task tasks.IngestTask) (string, error) {
	objectName := task.ObjectName
	if objectName == "" {
		objectName = doc.ObjectName
	}
	if objectName == "" {
		return "", fmt.Errorf("%w: document %d has neither text nor a source object", model.ErrValidation, doc.ID)
	}
	if p.archive == nil || p.extractor == nil {
		return "", fmt.Errorf("%w: extracting %s requires object storage and tika", model.ErrValidation, objectName)
	}

	object, err := p.archive.Open(ctx, objectName)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("source object %s: %w", objectName, model.ErrNotFound)
		}
		return "", fmt.Errorf("从 MinIO 读取文件失败: %w", err)
	}
	defer object.Close()

	text, err := p.extractor.ExtractText(ctx, object, doc.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", doc.FileName, err)
		return "", fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	return text, nil
}

// embed 并发地为分块生成向量，然后整体替换文档的向量。
func (p *Processor) embed(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	vectors := make([]model.ChunkVector, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := p.embedder.CreateEmbedding(gctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("块 %d 向量化失败: %w", chunks[i].SeqIndex, err)
			}
			vectors[i] = model.ChunkVector{
				DocumentID:   doc.ID,
				SeqIndex:     chunks[i].SeqIndex,
				Embedding:    vec,
				ModelVersion: p.embedder.ModelVersion(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[Processor] 向量化失败, DocumentID: %d, Error: %v", doc.ID, err)
		return err
	}
	if err := p.vectors.Replace(ctx, doc, vectors); err != nil {
		return fmt.Errorf("写入向量失败: %w", err)
	}
	log.Infof("[Processor] 步骤4: %d 个分块向量化并索引成功", len(vectors))
	return nil
}
