package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"zhiwen-go/pkg/log"
)

// NewRedis 建立 Redis 连接并做一次连通性检查。
// 客户端由调用方持有并注入使用方，不使用包级全局变量。
func NewRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
