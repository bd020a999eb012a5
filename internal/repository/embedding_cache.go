package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// EmbeddingCache 定义了查询向量的 Redis 缓存操作。
// 键按查询文本的 SHA-256 摘要生成，避免把原文写进键名。
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, error)
	Set(ctx context.Context, text string, embedding []float32) error
}

type embeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEmbeddingCache 创建一个新的 EmbeddingCache 实例。
func NewEmbeddingCache(rdb *redis.Client, ttl time.Duration) EmbeddingCache {
	return &embeddingCache{rdb: rdb, ttl: ttl}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:q:%s", hex.EncodeToString(sum[:]))
}

// Get 返回缓存的查询向量，未命中时返回 (nil, nil)。
func (c *embeddingCache) Get(ctx context.Context, text string) ([]float32, error) {
	data, err := c.rdb.Get(ctx, cacheKey(text)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(data), &embedding); err != nil {
		return nil, err
	}
	return embedding, nil
}

// Set 写入查询向量并设置过期时间。
func (c *embeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(text), data, c.ttl).Err()
}
