package es

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestIndex 启动一个伪 Elasticsearch，客户端会校验 X-Elastic-Product 响应头。
func newTestIndex(t *testing.T, handler http.HandlerFunc) *VectorIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewVectorIndex(client, "catalog_chunks", 3)
}

func TestSearch_FiltersByScopeAndModelVersion(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/catalog_chunks/_search"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		knn := body["knn"].(map[string]interface{})
		assert.Equal(t, float64(5), knn["k"])
		filters := knn["filter"].([]interface{})
		require.Len(t, filters, 2)
		terms := filters[0].(map[string]interface{})["terms"].(map[string]interface{})
		assert.Equal(t, []interface{}{float64(1), float64(2)}, terms["document_id"])
		version := filters[1].(map[string]interface{})["term"].(map[string]interface{})
		assert.Equal(t, "text-embedding-v4@3", version["model_version"])

		fmt.Fprint(w, `{"hits":{"hits":[
			{"_score":0.93,"_source":{"document_id":2,"seq_index":7}},
			{"_score":0.51,"_source":{"document_id":1,"seq_index":0}}
		]}}`)
	})

	hits, err := idx.Search(context.Background(), []float32{0.1, 0.2, 0.3}, "text-embedding-v4@3", model.DocumentScope{DocumentIDs: []uint{1, 2}}, 5)
	require.NoError(t, err)
	assert.Equal(t, []model.VectorHit{
		{DocumentID: 2, SeqIndex: 7, Score: 0.93},
		{DocumentID: 1, SeqIndex: 0, Score: 0.51},
	}, hits)
}

func TestSearch_GlobalWithoutVersionHasNoFilter(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasFilter := body["knn"].(map[string]interface{})["filter"]
		assert.False(t, hasFilter)
		fmt.Fprint(w, `{"hits":{"hits":[]}}`)
	})
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, "", model.DocumentScope{Global: true}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_EmptyScopeSkipsRequest(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	hits, err := idx.Search(context.Background(), []float32{1}, "m", model.DocumentScope{}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReplace_DeletesThenBulkIndexes(t *testing.T) {
	var calls []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			fmt.Fprint(w, `{"deleted":2}`)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			body, _ := io.ReadAll(r.Body)
			lines := strings.Split(strings.TrimSpace(string(body)), "\n")
			assert.Len(t, lines, 4)
			assert.Contains(t, lines[0], `"_id":"9_0"`)
			assert.Contains(t, lines[1], `"catalog_item_id":4`)
			fmt.Fprint(w, `{"errors":false,"items":[]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	item := uint(4)
	doc := model.Document{ID: 9, CatalogItemID: &item}
	err := idx.Replace(context.Background(), doc, []model.ChunkVector{
		{SeqIndex: 0, Embedding: []float32{1, 0, 0}, ModelVersion: "m"},
		{SeqIndex: 1, Embedding: []float32{0, 1, 0}, ModelVersion: "m"},
	})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "_delete_by_query")
	assert.Contains(t, calls[1], "_bulk")
}

func TestReplace_BulkItemErrors(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/_bulk") {
			fmt.Fprint(w, `{"errors":true,"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"deleted":0}`)
	})
	err := idx.Replace(context.Background(), model.Document{ID: 1}, []model.ChunkVector{{SeqIndex: 0, Embedding: []float32{1, 1, 1}}})
	require.Error(t, err)
}
