package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/pkg/embedding"
	"catalog-assist-go/pkg/log"
)

// Scope 描述检索范围。默认按目录条目检索，全局检索必须显式开启。
type Scope struct {
	CatalogItemID *uint
	DocumentIDs   []uint
	Global        bool
}

// RetrievalService 对分块打分排序，并在字符预算内返回结果。
type RetrievalService interface {
	// Retrieve 返回按分数降序排列的分块，内容长度之和不超过 budget；budget<=0 时使用配置的默认预算。
	Retrieve(ctx context.Context, query string, scope Scope, budget int) ([]model.RetrievedChunk, error)
}

type scorer interface {
	score(ctx context.Context, query string, scope model.DocumentScope) ([]model.RetrievedChunk, error)
}

type retrievalService struct {
	cfg         config.RetrievalConfig
	catalogRepo repository.CatalogRepository
	docRepo     repository.DocumentRepository
	scorer      scorer
}

// NewRetrievalService 按 cfg.Strategy 选择词法或向量打分。
// embedding 策略需要 embedClient 和 vectors，lexical 策略下两者可为 nil。
func NewRetrievalService(
	cfg config.RetrievalConfig,
	catalogRepo repository.CatalogRepository,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	embedClient embedding.Client,
	vectors repository.VectorIndex,
) (RetrievalService, error) {
	s := &retrievalService{cfg: cfg, catalogRepo: catalogRepo, docRepo: docRepo}
	switch cfg.Strategy {
	case "", "lexical":
		s.scorer = &lexicalScorer{
			chunkRepo:      chunkRepo,
			docRepo:        docRepo,
			candidateLimit: cfg.CandidateLimit,
			phraseBonus:    cfg.PhraseBonus,
			titleBonus:     cfg.TitleBonus,
		}
	case "embedding":
		if embedClient == nil || vectors == nil {
			return nil, fmt.Errorf("%w: embedding strategy requires an embedding client and a vector index", model.ErrValidation)
		}
		s.scorer = &embeddingScorer{
			client:         embedClient,
			vectors:        vectors,
			chunkRepo:      chunkRepo,
			docRepo:        docRepo,
			candidateLimit: cfg.CandidateLimit,
		}
	default:
		return nil, fmt.Errorf("%w: unsupported retrieval strategy %q", model.ErrValidation, cfg.Strategy)
	}
	return s, nil
}

func (s *retrievalService) Retrieve(ctx context.Context, query string, scope Scope, budget int) ([]model.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", model.ErrValidation)
	}
	if budget <= 0 {
		budget = s.cfg.BudgetChars
	}
	docScope, err := s.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if docScope.Empty() {
		return []model.RetrievedChunk{}, nil
	}

	candidates, err := s.scorer.score(ctx, query, docScope)
	if err != nil {
		return nil, err
	}
	selected := selectWithinBudget(candidates, s.cfg.MinScore, budget, s.cfg.MaxResults)
	log.Infof("[RetrievalService] query=%q, 候选 %d 个, 选中 %d 个", query, len(candidates), len(selected))
	return selected, nil
}

// resolveScope 把请求范围转换为文档 ID 集合。同时给出目录条目与文档 ID 时取交集。
func (s *retrievalService) resolveScope(ctx context.Context, scope Scope) (model.DocumentScope, error) {
	if scope.Global {
		return model.DocumentScope{Global: true}, nil
	}
	if scope.CatalogItemID == nil {
		if len(scope.DocumentIDs) == 0 {
			return model.DocumentScope{}, fmt.Errorf("%w: retrieval scope is required", model.ErrValidation)
		}
		return model.DocumentScope{DocumentIDs: scope.DocumentIDs}, nil
	}

	if _, err := s.catalogRepo.FindByID(ctx, *scope.CatalogItemID); err != nil {
		return model.DocumentScope{}, err
	}
	ids, err := s.docRepo.IDsByCatalogItem(ctx, *scope.CatalogItemID)
	if err != nil {
		return model.DocumentScope{}, fmt.Errorf("resolve catalog scope: %w", err)
	}
	if len(scope.DocumentIDs) == 0 {
		return model.DocumentScope{DocumentIDs: ids}, nil
	}
	inItem := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		inItem[id] = struct{}{}
	}
	var both []uint
	for _, id := range scope.DocumentIDs {
		if _, ok := inItem[id]; ok {
			both = append(both, id)
		}
	}
	return model.DocumentScope{DocumentIDs: both}, nil
}

// selectWithinBudget 丢弃不高于 minScore 的候选，按分数降序、序号升序、文档 ID 升序排序，
// 然后依次选取，直到下一个分块放不进预算。单个就超出预算的分块直接跳过。
func selectWithinBudget(candidates []model.RetrievedChunk, minScore float64, budget, maxResults int) []model.RetrievedChunk {
	kept := make([]model.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score > minScore {
			kept = append(kept, c)
		}
	}
	sortByScore(kept)

	selected := make([]model.RetrievedChunk, 0)
	used := 0
	for _, c := range kept {
		if maxResults > 0 && len(selected) >= maxResults {
			break
		}
		n := c.Length()
		if n > budget {
			continue
		}
		if used+n > budget {
			break
		}
		selected = append(selected, c)
		used += n
	}
	return selected
}

// sortByScore 按分数降序、序号升序、文档 ID 升序排序。
func sortByScore(chunks []model.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].SeqIndex != chunks[j].SeqIndex {
			return chunks[i].SeqIndex < chunks[j].SeqIndex
		}
		return chunks[i].DocumentID < chunks[j].DocumentID
	})
}
