package pipeline

import (
	"context"
	"time"

	"zhiwen-go/pkg/kafka"
	"zhiwen-go/pkg/tasks"
)

// 流水线对外发布的进度事件名。
const (
	EventProcessingStarted   = "processing_started"
	EventTextExtracted       = "text_extracted"
	EventChunksCreated       = "chunks_created"
	EventProcessingCompleted = "processing_completed"
	EventProcessingFailed    = "processing_failed"
)

// Notifier 把处理进度发布给外部订阅方。
// 流水线以 fire-and-forget 方式调用：返回的错误只用于记日志，不中断处理。
// 实现必须允许不同文档的事件并发发布。
type Notifier interface {
	Notify(ctx context.Context, documentID, collectionID, event string, payload map[string]interface{}) error
}

// kafkaNotifier 把进度事件发布到 Kafka 事件主题。
type kafkaNotifier struct {
	producer *kafka.Producer
}

// NewKafkaNotifier 创建基于 Kafka 的进度通知器。
func NewKafkaNotifier(producer *kafka.Producer) Notifier {
	return &kafkaNotifier{producer: producer}
}

func (n *kafkaNotifier) Notify(ctx context.Context, documentID, collectionID, event string, payload map[string]interface{}) error {
	return n.producer.PublishDocumentEvent(ctx, tasks.DocumentEvent{
		DocumentID:   documentID,
		CollectionID: collectionID,
		Event:        event,
		Payload:      payload,
		OccurredAt:   time.Now().UnixMilli(),
	})
}
