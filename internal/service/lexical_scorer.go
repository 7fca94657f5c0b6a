package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/internal/repository"
)

// 常见葡萄牙语与英语虚词，不参与打分。
var stopWords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "de": {}, "da": {}, "do": {}, "das": {}, "dos": {},
	"e": {}, "em": {}, "no": {}, "na": {}, "nos": {}, "nas": {}, "um": {}, "uma": {}, "para": {},
	"por": {}, "com": {}, "que": {}, "qual": {}, "quais": {}, "se": {}, "ao": {}, "é": {},
	"the": {}, "an": {}, "of": {}, "and": {}, "or": {}, "in": {}, "on": {}, "to": {}, "for": {},
	"is": {}, "are": {}, "what": {}, "which": {}, "with": {}, "how": {},
}

// words 把文本切分为由字母和数字组成的小写词，保留顺序与虚词。
func words(s string) []string {
	return strings.FieldsFunc(model.FoldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

// queryTerms 返回去重、去虚词后的查询词，顺序与出现顺序一致。
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, w := range words(query) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(s) {
		set[w] = struct{}{}
	}
	return set
}

// lexicalScorer 按查询词命中数打分，短语完整出现与文件名命中额外加分。
// candidateLimit 在打分排序之后截断，不影响哪些分块参与打分。
type lexicalScorer struct {
	chunkRepo      repository.ChunkRepository
	docRepo        repository.DocumentRepository
	candidateLimit int
	phraseBonus    float64
	titleBonus     float64
}

func (s *lexicalScorer) score(ctx context.Context, query string, scope model.DocumentScope) ([]model.RetrievedChunk, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	candidates, err := s.chunkRepo.Search(ctx, repository.SearchQuery{Terms: terms}, scope)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	fileNames, err := loadFileNames(ctx, s.docRepo, candidates)
	if err != nil {
		return nil, err
	}

	// 短语至少包含两个词才加分
	var phrase string
	if qw := words(query); len(qw) > 1 {
		phrase = " " + strings.Join(qw, " ") + " "
	}
	titleWords := make(map[uint]map[string]struct{})

	scored := make([]model.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		contentWords := words(c.Content)
		present := make(map[string]struct{}, len(contentWords))
		for _, w := range contentWords {
			present[w] = struct{}{}
		}

		var score float64
		for _, t := range terms {
			if _, ok := present[t]; ok {
				score++
			}
		}
		if score == 0 {
			// LIKE 命中的只是子串，例如 "selo" 出现在 "selos" 中
			continue
		}
		if phrase != "" && strings.Contains(" "+strings.Join(contentWords, " ")+" ", phrase) {
			score += s.phraseBonus
		}

		tw, ok := titleWords[c.DocumentID]
		if !ok {
			tw = wordSet(fileNames[c.DocumentID])
			titleWords[c.DocumentID] = tw
		}
		for _, t := range terms {
			if _, ok := tw[t]; ok {
				score += s.titleBonus
			}
		}

		scored = append(scored, model.RetrievedChunk{
			DocumentID: c.DocumentID,
			FileName:   fileNames[c.DocumentID],
			SeqIndex:   c.SeqIndex,
			Content:    c.Content,
			Score:      score,
		})
	}
	sortByScore(scored)
	if s.candidateLimit > 0 && len(scored) > s.candidateLimit {
		scored = scored[:s.candidateLimit]
	}
	return scored, nil
}

func loadFileNames(ctx context.Context, docRepo repository.DocumentRepository, chunks []model.Chunk) (map[uint]string, error) {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			ids = append(ids, c.DocumentID)
		}
	}
	names, err := docRepo.FileNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load document names: %w", err)
	}
	return names, nil
}
