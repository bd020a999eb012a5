// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Chunk 对应于数据库中的 'chunks' 表，是文档文本的最小检索单元。
//
// 约束：同一文档内 chunk_index 从 0 连续递增；end_char > start_char；
// embedding 为 NULL 表示尚未生成嵌入，此类分块不参与向量检索；
// embedding 非空时长度必须等于嵌入模型的固定维度。
type Chunk struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:char(36);not null;uniqueIndex:idx_chunk_doc_pos,priority:1" json:"documentId"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_chunk_doc_pos,priority:2" json:"chunkIndex"`
	Text       string    `gorm:"type:longtext;not null" json:"text"`
	TokenCount int       `gorm:"not null;default:0" json:"tokenCount"`
	Embedding  Vector    `gorm:"type:json" json:"-"`
	Metadata   JSONMap   `gorm:"type:json" json:"metadata"`
	StartChar  int       `gorm:"not null;default:0" json:"startChar"`
	EndChar    int       `gorm:"not null;default:0" json:"endChar"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "chunks"
}

// Embedded 报告该分块是否已经生成嵌入向量。
func (c *Chunk) Embedded() bool {
	return c.Embedding != nil
}
