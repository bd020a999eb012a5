// Package storage 提供了与对象存储服务（MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"zhiwen-go/internal/config"
	"zhiwen-go/pkg/log"
)

// Client 包装 MinIO 客户端与默认存储桶，按实例注入使用方。
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保存储桶存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Infof("MinIO 客户端初始化成功, bucket: %s", cfg.BucketName)
	return &Client{mc: mc, bucket: cfg.BucketName}, nil
}

// Put 将数据流写入指定对象。
func (c *Client) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("写入对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// Get 打开指定对象的读取流，调用方负责 Close。
func (c *Client) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", objectName, err)
	}
	return obj, nil
}

// Remove 删除指定对象。对象不存在时 MinIO 视为成功。
func (c *Client) Remove(ctx context.Context, objectName string) error {
	return c.mc.RemoveObject(ctx, c.bucket, objectName, minio.RemoveObjectOptions{})
}

// RemovePrefix 删除指定前缀下的全部对象，用于集合级联清理。
func (c *Client) RemovePrefix(ctx context.Context, prefix string) error {
	objects := c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return obj.Err
		}
		if err := c.mc.RemoveObject(ctx, c.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("删除对象 %s 失败: %w", obj.Key, err)
		}
	}
	return nil
}

// PresignedGetURL 生成对象的临时下载链接。
func (c *Client) PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := c.mc.PresignedGetObject(ctx, c.bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名链接失败: %w", err)
	}
	return presignedURL.String(), nil
}
