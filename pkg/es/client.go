// Package es 提供基于 Elasticsearch kNN 的分块向量索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// VectorIndex 把分块向量存放在 Elasticsearch 的 dense_vector 字段中。
type VectorIndex struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// NewClient 按配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// NewVectorIndex 创建向量索引，dims 为向量维度。
func NewVectorIndex(client *elasticsearch.Client, indexName string, dims int) *VectorIndex {
	return &VectorIndex{client: client, indexName: indexName, dims: dims}
}

// EnsureIndex 检查索引是否存在，不存在则创建。
func (v *VectorIndex) EnsureIndex(ctx context.Context) error {
	res, err := v.client.Indices.Exists([]string{v.indexName}, v.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", v.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"document_id": { "type": "long" },
				"seq_index": { "type": "integer" },
				"catalog_item_id": { "type": "long" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, v.dims)

	res, err = v.client.Indices.Create(
		v.indexName,
		v.client.Indices.Create.WithContext(ctx),
		v.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", v.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", v.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", v.indexName)
	return nil
}

// Replace 删除文档已有的向量后批量写入新向量。
func (v *VectorIndex) Replace(ctx context.Context, doc model.Document, vectors []model.ChunkVector) error {
	if err := v.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	var catalogItemID uint
	if doc.CatalogItemID != nil {
		catalogItemID = *doc.CatalogItemID
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, vec := range vectors {
		esDoc := model.EsDocument{
			VectorID:      model.VectorDocumentID(doc.ID, vec.SeqIndex),
			DocumentID:    doc.ID,
			SeqIndex:      vec.SeqIndex,
			CatalogItemID: catalogItemID,
			Vector:        vec.Embedding,
			ModelVersion:  vec.ModelVersion,
		}
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": v.indexName, "_id": esDoc.VectorID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(esDoc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "true"}
	res, err := req.Do(ctx, v.client)
	if err != nil {
		return fmt.Errorf("bulk index vectors: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入向量到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("bulk index vectors: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return fmt.Errorf("bulk index vectors: some items failed for document %d", doc.ID)
	}
	return nil
}

// DeleteByDocument 删除文档的全部向量。
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{v.indexName},
		Body:    strings.NewReader(query),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, v.client)
	if err != nil {
		return fmt.Errorf("delete vectors of document %d: %w", documentID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete vectors of document %d: %s", documentID, res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64          `json:"_score"`
			Source model.EsDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在 scope 内执行 kNN 检索，返回最相似的 k 个分块。modelVersion 非空时只检索该模型生成的向量。
func (v *VectorIndex) Search(ctx context.Context, query []float32, modelVersion string, scope model.DocumentScope, k int) ([]model.VectorHit, error) {
	if scope.Empty() || k <= 0 {
		return []model.VectorHit{}, nil
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   query,
		"k":              k,
		"num_candidates": k * 10,
	}
	var filters []map[string]interface{}
	if !scope.Global {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"document_id": scope.DocumentIDs},
		})
	}
	if modelVersion != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"model_version": modelVersion},
		})
	}
	if len(filters) > 0 {
		knn["filter"] = filters
	}
	esQuery := map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": []string{"document_id", "seq_index"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := v.client.Search(
		v.client.Search.WithContext(ctx),
		v.client.Search.WithIndex(v.indexName),
		v.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[VectorIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]model.VectorHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, model.VectorHit{
			DocumentID: h.Source.DocumentID,
			SeqIndex:   h.Source.SeqIndex,
			Score:      h.Score,
		})
	}
	return hits, nil
}
