// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QueryStatus 表示一次问答记录的状态。
type QueryStatus string

const (
	QueryStatusPending    QueryStatus = "pending"
	QueryStatusProcessing QueryStatus = "processing"
	QueryStatusCompleted  QueryStatus = "completed"
	QueryStatusFailed     QueryStatus = "failed"
)

// CitationList 是以 JSON 文本落库的引用列表。
type CitationList []Citation

// Value 实现 driver.Valuer。
func (l CitationList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner。
func (l *CitationList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("CitationList: 不支持的列类型 %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// Query 对应于数据库中的 'queries' 表，持久化一次问答及其引用与置信度。
// 仅当调用方显式要求持久化时才会写入；流式回答被取消时不保存部分结果。
type Query struct {
	ID               string       `gorm:"type:char(36);primaryKey" json:"id"`
	UserID           uint         `gorm:"not null;index" json:"userId"`
	CollectionID     *string      `gorm:"type:char(36);index" json:"collectionId"`
	QueryText        string       `gorm:"type:text;not null" json:"queryText"`
	Result           *string      `gorm:"type:longtext" json:"result"`
	Status           QueryStatus  `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ErrorMessage     *string      `gorm:"type:text" json:"errorMessage"`
	Sources          CitationList `gorm:"type:json" json:"sources"`
	ConfidenceScore  float64      `gorm:"not null;default:0" json:"confidenceScore"`
	ModelUsed        string       `gorm:"type:varchar(100)" json:"modelUsed"`
	ProcessingTimeMs int64        `gorm:"not null;default:0" json:"processingTimeMs"`
	CompletedAt      *time.Time   `json:"completedAt"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Query) TableName() string {
	return "queries"
}
