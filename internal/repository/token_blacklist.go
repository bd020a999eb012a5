package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist 定义了登出 token 黑名单的 Redis 操作。
// 键的过期时间取 token 的剩余有效期，到期后自动清理。
type TokenBlacklist interface {
	Add(ctx context.Context, tokenString string, ttl time.Duration) error
	Contains(ctx context.Context, tokenString string) (bool, error)
}

type tokenBlacklist struct {
	rdb *redis.Client
}

// NewTokenBlacklist 创建一个新的 TokenBlacklist 实例。
func NewTokenBlacklist(rdb *redis.Client) TokenBlacklist {
	return &tokenBlacklist{rdb: rdb}
}

func blacklistKey(tokenString string) string {
	return "blacklist:" + tokenString
}

// Add 把 token 写入黑名单，ttl 非正时视为已过期，直接跳过。
func (b *tokenBlacklist) Add(ctx context.Context, tokenString string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, blacklistKey(tokenString), "true", ttl).Err()
}

// Contains 报告 token 是否在黑名单中。
func (b *tokenBlacklist) Contains(ctx context.Context, tokenString string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
