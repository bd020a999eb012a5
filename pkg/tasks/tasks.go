// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents the data structure for a document processing job.
// Force 为 true 时即使文档已处理完成也会重新走一遍流水线。
type DocumentProcessingTask struct {
	DocumentID   string `json:"document_id"`
	CollectionID string `json:"collection_id"`
	Force        bool   `json:"force"`
}

// DocumentEvent 描述文档处理过程中的一次进度事件，发布到事件主题供外部系统订阅。
type DocumentEvent struct {
	DocumentID   string                 `json:"document_id"`
	CollectionID string                 `json:"collection_id"`
	Event        string                 `json:"event"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   int64                  `json:"occurred_at"`
}
