package service

import (
	"context"
	"io"
	"time"

	"zhiwen-go/pkg/tasks"
)

// ObjectStore 抽象原始文件的对象存储操作，由 pkg/storage 的 MinIO 客户端实现。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectName string) error
	RemovePrefix(ctx context.Context, prefix string) error
	PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// TaskDispatcher 抽象文档处理任务的派发，由 pkg/kafka 的生产者实现。
type TaskDispatcher interface {
	ProduceDocumentTask(ctx context.Context, task tasks.DocumentProcessingTask) error
}
