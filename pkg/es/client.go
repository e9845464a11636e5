// Package es 提供了基于 Elasticsearch 的向量检索网关。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"rfx-assist-go/internal/config"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

// Client 定义了检索网关的接口：单查询与批量查询，结果按分数降序。
type Client interface {
	// Search 以查询向量检索 limit 条带分文档。
	Search(ctx context.Context, vector []float32, limit int) ([]model.ScoredDocument, error)
	// SearchBatch 对多个向量执行一次分组检索，结果与输入下标对齐。
	SearchBatch(ctx context.Context, vectors [][]float32, limit int) ([][]model.ScoredDocument, error)
}

type esClient struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并确保答案索引存在。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &esClient{es: client, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查答案索引是否存在，如果不存在则创建它
func (c *esClient) createIndexIfNotExists(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 答案语料的载荷字段 + cosine 向量
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"source": { "type": "keyword" },
				"title":  { "type": "text" },
				"answer": { "type": "text" },
				"images": { "type": "keyword" },
				"slide":  { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// knnQuery 构建单个向量的 kNN 查询体。
func knnQuery(vector []float32, limit int) map[string]interface{} {
	return map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              limit,
			"num_candidates": limit * 10,
		},
		"size": limit,
	}
}

type esHits struct {
	Hits struct {
		Hits []struct {
			ID     string                `json:"_id"`
			Score  float64               `json:"_score"`
			Source model.DocumentPayload `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (h esHits) documents() []model.ScoredDocument {
	docs := make([]model.ScoredDocument, 0, len(h.Hits.Hits))
	for _, hit := range h.Hits.Hits {
		payload := hit.Source
		docs = append(docs, model.ScoredDocument{
			ID:      hit.ID,
			Score:   hit.Score,
			Payload: &payload,
		})
	}
	return docs
}

// Search 执行单向量 kNN 检索。
func (c *esClient) Search(ctx context.Context, vector []float32, limit int) ([]model.ScoredDocument, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(knnQuery(vector, limit)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ESClient] Elasticsearch 返回错误, status: %s", res.Status())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var hits esHits
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return hits.documents(), nil
}

// SearchBatch 通过 _msearch 一次提交全部向量，返回与输入对齐的结果组。
func (c *esClient) SearchBatch(ctx context.Context, vectors [][]float32, limit int) ([][]model.ScoredDocument, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// msearch 按 header/body 成对写入，索引统一
	for _, vector := range vectors {
		if err := enc.Encode(map[string]interface{}{"index": c.indexName}); err != nil {
			return nil, fmt.Errorf("failed to encode msearch header: %w", err)
		}
		if err := enc.Encode(knnQuery(vector, limit)); err != nil {
			return nil, fmt.Errorf("failed to encode msearch body: %w", err)
		}
	}

	res, err := c.es.Msearch(
		&buf,
		c.es.Msearch.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch msearch failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ESClient] Elasticsearch msearch 返回错误, status: %s", res.Status())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var msResponse struct {
		Responses []esHits `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&msResponse); err != nil {
		return nil, fmt.Errorf("failed to decode msearch response: %w", err)
	}
	if len(msResponse.Responses) != len(vectors) {
		return nil, fmt.Errorf("msearch returned %d responses for %d queries", len(msResponse.Responses), len(vectors))
	}

	results := make([][]model.ScoredDocument, len(vectors))
	for i, r := range msResponse.Responses {
		results[i] = r.documents()
	}
	return results, nil
}
