// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
	"zhiwen-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client 封装 Elasticsearch 连接与分块向量索引的名称。
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient 初始化 Elasticsearch 客户端并确保分块索引存在。
// dims 为嵌入向量维度，创建索引时写入 mapping。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{es: esClient, index: esCfg.IndexName}
	if err := c.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它。
// text 字段只存储不索引，检索完全依赖 embedding 向量。
func (c *Client) createIndexIfNotExists(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", c.index)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id":      { "type": "keyword" },
				"document_id":   { "type": "keyword" },
				"collection_id": { "type": "keyword" },
				"chunk_index":   { "type": "integer" },
				"text":          { "type": "text", "index": false },
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.index, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功, 向量维度 %d", c.index, dims)
	return nil
}

// IndexChunk 将单个已嵌入的分块索引到 Elasticsearch，写入后立即刷新以保证可检索。
func (c *Client) IndexChunk(ctx context.Context, doc model.ChunkDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ChunkID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index chunk")
	}

	return nil
}

// DeleteByDocumentID 删除指定文档的全部分块向量。
func (c *Client) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return c.deleteByTerm(ctx, "document_id", documentID)
}

// DeleteByCollectionID 删除指定集合的全部分块向量。
func (c *Client) DeleteByCollectionID(ctx context.Context, collectionID string) error {
	return c.deleteByTerm(ctx, "collection_id", collectionID)
}

func (c *Client) deleteByTerm(ctx context.Context, field, value string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				field: value,
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("构建删除查询失败: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		&buf,
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按 %s 删除分块时 Elasticsearch 返回错误: %s", field, res.String())
		return errors.New("failed to delete chunks")
	}

	log.Infof("[ES] 已删除 %s=%s 的分块向量", field, value)
	return nil
}

// SearchByVector 在过滤范围内对全部分块向量做精确余弦相似度计算，返回得分最高的 k 条。
// script_score 的得分为 cosine + 1.0（保证非负），这里还原为余弦相似度后返回。
func (c *Client) SearchByVector(ctx context.Context, vector []float32, filter model.VectorFilter, k int) ([]model.ChunkHit, error) {
	query := map[string]interface{}{
		"size": k,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": buildFilterQuery(filter),
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
					"params": map[string]interface{}{
						"query_vector": vector,
					},
				},
			},
		},
		"_source": []string{"chunk_id", "document_id", "collection_id", "chunk_index", "text"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("构建检索查询失败: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("向量检索时 Elasticsearch 返回错误: %s", res.String())
		return nil, errors.New("failed to search chunks")
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float64             `json:"_score"`
				Source model.ChunkDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}

	hits := make([]model.ChunkHit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, model.ChunkHit{
			ChunkID:      h.Source.ChunkID,
			DocumentID:   h.Source.DocumentID,
			CollectionID: h.Source.CollectionID,
			ChunkIndex:   h.Source.ChunkIndex,
			Text:         h.Source.Text,
			Similarity:   h.Score - 1.0,
		})
	}
	return hits, nil
}

// buildFilterQuery 把范围过滤条件翻译为 bool/filter 查询，空条件退化为 match_all。
// 单集合优先于集合列表，文档列表与集合过滤为合取关系。
// 非 nil 的空集合列表翻译为空 terms 查询，不命中任何分块。
func buildFilterQuery(filter model.VectorFilter) map[string]interface{} {
	if filter.Empty() {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	var filters []map[string]interface{}
	if filter.CollectionID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"collection_id": filter.CollectionID},
		})
	} else if filter.CollectionIDs != nil {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"collection_id": filter.CollectionIDs},
		})
	}
	if len(filter.DocumentIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"document_id": filter.DocumentIDs},
		})
	}

	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": filters,
		},
	}
}
