// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"zhiwen-go/internal/config"
	"zhiwen-go/pkg/log"
)

// RateLimitError 表示上游返回了限流响应（HTTP 429），调用方可据此退避后重试。
type RateLimitError struct {
	Status string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("embedding api rate limited: %s", e.Status)
}

// IsRateLimit 判断错误链中是否包含限流错误。
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// Client defines the interface for an embedding client.
type Client interface {
	// CreateEmbedding 为单条文本生成向量，内部走批量接口。
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CreateEmbeddings 为一批文本生成向量，返回顺序与输入一致。
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings calls the OpenAI-compatible API to get vectors for a batch of texts.
// 返回的向量按请求中的 index 对齐，保证与输入顺序一致。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch_size: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model, // Use model from config
		Input:      texts,
		Dimensions: c.cfg.Dimensions, // Use dimensions from config
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Warnf("[EmbeddingClient] Embedding API 返回限流状态: %s", resp.Status)
		return nil, &RateLimitError{Status: resp.Status}
	}

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Errorf("[EmbeddingClient] Embedding API 返回向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(embeddingResp.Data))
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range embeddingResp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding api returned out-of-range index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据, index: %d", item.Index)
			return nil, fmt.Errorf("received empty embedding from api")
		}
		if c.cfg.Dimensions > 0 && len(item.Embedding) != c.cfg.Dimensions {
			return nil, fmt.Errorf("embedding api returned %d dimensions, expected %d", len(item.Embedding), c.cfg.Dimensions)
		}
		vectors[item.Index] = item.Embedding
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
