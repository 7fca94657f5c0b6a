package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualChunks 返回 10 个分块，只有 #7 同时包含 "seladora" 与 "indução"。
func manualChunks() []string {
	contents := make([]string, 10)
	for i := range contents {
		contents[i] = fmt.Sprintf("esteira modular em aço inox, trecho %d", i)
	}
	contents[2] = "a seladora manual usa resistência elétrica"
	contents[4] = "aquecimento por indução no cabeçote"
	contents[7] = "a seladora de indução opera em 220 v e sela tampas de alumínio"
	return contents
}

func TestRetrieve_LexicalRanksChunkWithAllTermsFirst(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "SI-200")
	doc := f.document(t, "manual.txt", &item.ID, manualChunks()...)

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(context.Background(), "seladora de indução", Scope{CatalogItemID: &item.ID}, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, doc.ID, got[0].DocumentID)
	assert.Equal(t, 7, got[0].SeqIndex)
	assert.Equal(t, "manual.txt", got[0].FileName)
	// 2 个词 + 短语加分
	assert.InDelta(t, 4.0, got[0].Score, 1e-9)
	// 同分按序号升序
	assert.Equal(t, 2, got[1].SeqIndex)
	assert.Equal(t, 4, got[2].SeqIndex)
}

func TestRetrieve_LexicalFoldsAccentedUppercase(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "SI-200")
	f.document(t, "ficha.txt", &item.ID,
		"AQUECIMENTO POR INDUÇÃO NO CABEÇOTE",
		"troca da correia",
	)

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(context.Background(), "indução", Scope{CatalogItemID: &item.ID}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].SeqIndex)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestRetrieve_CandidateLimitAppliesAfterScoring(t *testing.T) {
	f := newFixture(t)
	common := make([]string, 10)
	for i := range common {
		common[i] = fmt.Sprintf("seladora trecho %d", i)
	}
	// 文档 ID 更小且命中常见词的分块足以填满候选上限
	f.document(t, "linha.txt", nil, common...)
	best := f.document(t, "ficha.txt", nil, "a seladora de indução fecha os frascos")

	cfg := lexicalConfig()
	cfg.CandidateLimit = 5
	got, err := f.retrieval(t, cfg).Retrieve(context.Background(), "seladora de indução", Scope{Global: true}, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, best.ID, got[0].DocumentID)
	assert.InDelta(t, 4.0, got[0].Score, 1e-9)
	for _, c := range got[1:] {
		assert.InDelta(t, 1.0, c.Score, 1e-9)
	}
}

func TestRetrieve_TitleBonus(t *testing.T) {
	f := newFixture(t)
	a := f.document(t, "esteira.txt", nil, "velocidade de 40 m/min")
	b := f.document(t, "ficha.txt", nil, "velocidade de 40 m/min")

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(context.Background(), "esteira velocidade", Scope{DocumentIDs: []uint{a.ID, b.ID}}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].DocumentID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRetrieve_RespectsBudget(t *testing.T) {
	f := newFixture(t)
	contents := make([]string, 6)
	for i := range contents {
		contents[i] = "seladora " + strings.Repeat("x", 91) // 100 字符
	}
	doc := f.document(t, "manual.txt", nil, contents...)

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(context.Background(), "seladora", Scope{DocumentIDs: []uint{doc.ID}}, 250)
	require.NoError(t, err)
	require.Len(t, got, 2)
	total := 0
	for _, c := range got {
		total += c.Length()
	}
	assert.LessOrEqual(t, total, 250)
}

func TestRetrieve_Scope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemA := f.item(t, "A")
	itemB := f.item(t, "B")
	docA := f.document(t, "a.txt", &itemA.ID, "seladora modelo A")
	docB := f.document(t, "b.txt", &itemB.ID, "seladora modelo B")
	svc := f.retrieval(t, lexicalConfig())

	t.Run("catalog item limits documents", func(t *testing.T) {
		got, err := svc.Retrieve(ctx, "seladora", Scope{CatalogItemID: &itemA.ID}, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, docA.ID, got[0].DocumentID)
	})

	t.Run("global searches every document", func(t *testing.T) {
		got, err := svc.Retrieve(ctx, "seladora", Scope{Global: true}, 0)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("intersection of item and documents", func(t *testing.T) {
		got, err := svc.Retrieve(ctx, "seladora", Scope{CatalogItemID: &itemA.ID, DocumentIDs: []uint{docB.ID}}, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing scope", func(t *testing.T) {
		_, err := svc.Retrieve(ctx, "seladora", Scope{}, 0)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("unknown catalog item", func(t *testing.T) {
		_, err := svc.Retrieve(ctx, "seladora", Scope{CatalogItemID: uintPtr(999)}, 0)
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := svc.Retrieve(ctx, "  ", Scope{Global: true}, 0)
		assert.True(t, errors.Is(err, model.ErrValidation))
	})
}

func TestRetrieve_SkipsInactiveDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.document(t, "a.txt", nil, "seladora de indução")
	require.NoError(t, f.docs.SetActive(ctx, doc.ID, false))

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(ctx, "seladora", Scope{Global: true}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_SubstringOnlyMatchIsIgnored(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "a.txt", nil, "selos de alumínio")

	got, err := f.retrieval(t, lexicalConfig()).Retrieve(context.Background(), "selo", Scope{DocumentIDs: []uint{doc.ID}}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectWithinBudget(t *testing.T) {
	chunk := func(doc uint, seq, size int, score float64) model.RetrievedChunk {
		return model.RetrievedChunk{DocumentID: doc, SeqIndex: seq, Content: strings.Repeat("a", size), Score: score}
	}

	t.Run("stops at first chunk that does not fit", func(t *testing.T) {
		got := selectWithinBudget([]model.RetrievedChunk{
			chunk(1, 0, 60, 3), chunk(1, 1, 60, 2), chunk(1, 2, 10, 1),
		}, 0, 100, 0)
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].SeqIndex)
	})

	t.Run("skips chunk larger than budget", func(t *testing.T) {
		got := selectWithinBudget([]model.RetrievedChunk{
			chunk(1, 0, 500, 9), chunk(1, 1, 40, 2),
		}, 0, 100, 0)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].SeqIndex)
	})

	t.Run("drops scores at or below min score", func(t *testing.T) {
		got := selectWithinBudget([]model.RetrievedChunk{
			chunk(1, 0, 10, 0.5), chunk(1, 1, 10, 0.2),
		}, 0.2, 100, 0)
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].SeqIndex)
	})

	t.Run("ties break by index then document", func(t *testing.T) {
		got := selectWithinBudget([]model.RetrievedChunk{
			chunk(2, 1, 10, 1), chunk(2, 0, 10, 1), chunk(1, 1, 10, 1),
		}, 0, 100, 0)
		require.Len(t, got, 3)
		assert.Equal(t, []uint{2, 1, 2}, []uint{got[0].DocumentID, got[1].DocumentID, got[2].DocumentID})
		assert.Equal(t, 0, got[0].SeqIndex)
	})

	t.Run("max results", func(t *testing.T) {
		got := selectWithinBudget([]model.RetrievedChunk{
			chunk(1, 0, 10, 3), chunk(1, 1, 10, 2), chunk(1, 2, 10, 1),
		}, 0, 100, 2)
		assert.Len(t, got, 2)
	})

	t.Run("zero budget selects nothing", func(t *testing.T) {
		assert.Empty(t, selectWithinBudget([]model.RetrievedChunk{chunk(1, 0, 10, 3)}, 0, 0, 0))
	})
}

func TestNewRetrievalService_Strategy(t *testing.T) {
	f := newFixture(t)

	_, err := NewRetrievalService(config.RetrievalConfig{Strategy: "embedding"}, f.catalog, f.docs, f.chunks, nil, nil)
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = NewRetrievalService(config.RetrievalConfig{Strategy: "bm25"}, f.catalog, f.docs, f.chunks, nil, nil)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
