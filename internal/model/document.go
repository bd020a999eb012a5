// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// DocumentStatus 表示文档处理流水线的生命周期状态。
// 状态单向推进：uploaded → processing → processed | failed，
// 仅手动重新处理会把 processed/failed 拉回 processing。
type DocumentStatus string

const (
	DocStatusUploaded   DocumentStatus = "uploaded"
	DocStatusProcessing DocumentStatus = "processing"
	DocStatusProcessed  DocumentStatus = "processed"
	DocStatusFailed     DocumentStatus = "failed"
)

// Document 对应于数据库中的 'documents' 表，代表一个上传的文件。
//
// 约束：extracted_text 仅在 processing/processed 状态下非空；
// processing_error 在 failed 状态下记录致命错误，在 processed 状态下
// 可能记录降级注释（分块或嵌入失败，但文本已可用）。
type Document struct {
	ID              string         `gorm:"type:char(36);primaryKey" json:"id"`
	CollectionID    string         `gorm:"type:char(36);not null;index" json:"collectionId"`
	Name            string         `gorm:"type:varchar(255);not null" json:"name"`
	MediaType       string         `gorm:"type:varchar(100);not null" json:"mediaType"`
	SizeBytes       int64          `gorm:"not null;default:0" json:"sizeBytes"`
	Status          DocumentStatus `gorm:"type:varchar(20);not null;default:'uploaded';index" json:"status"`
	StoragePath     string         `gorm:"type:varchar(512);not null" json:"-"`
	ExtractedText   *string        `gorm:"type:longtext" json:"-"`
	Metadata        JSONMap        `gorm:"type:json" json:"metadata"`
	ProcessingError *string        `gorm:"type:text" json:"processingError"`
	ProcessedAt     *time.Time     `json:"processedAt"`
	UploadedBy      uint           `gorm:"not null" json:"uploadedBy"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
