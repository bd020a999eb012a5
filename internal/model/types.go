// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap 是以 JSON 文本落库的自由结构元数据。
// 空 map 与 nil 均存为 SQL NULL。
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer。
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner。
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("JSONMap: 不支持的列类型 %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Vector 是以 JSON 数组落库的嵌入向量。
// nil 向量存为 SQL NULL，借此区分"尚未生成嵌入"的分块。
type Vector []float32

// Value 实现 driver.Valuer。
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan 实现 sql.Scanner。
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch val := value.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		return fmt.Errorf("Vector: 不支持的列类型 %T", value)
	}
	if len(data) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(data, v)
}

// Dims 返回向量维度，nil 向量为 0。
func (v Vector) Dims() int {
	return len(v)
}
