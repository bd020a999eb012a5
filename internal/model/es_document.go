// Package model 定义了与数据库表对应的 Go 结构体。
package model

// ChunkDocument 代表存储在 Elasticsearch 中的分块向量条目。
// 只有已生成嵌入的分块才会被索引，文本仅随 _source 保存用于展示，
// 不参与全文检索。
type ChunkDocument struct {
	ChunkID      string    `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	CollectionID string    `json:"collection_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"embedding"`
}

// ChunkHit 是一次向量检索的单条命中，Similarity 为余弦相似度 [-1, 1]。
type ChunkHit struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	CollectionID string  `json:"collection_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Similarity   float64 `json:"similarity"`
}

// VectorFilter 描述向量检索的范围过滤条件。
// CollectionID 优先于 CollectionIDs（两者都给时只用前者），
// DocumentIDs 与集合过滤为合取关系；全部为空表示不限范围。
//
// 注意 CollectionIDs 区分 nil 与空切片：nil 表示不按集合过滤，
// 空切片表示按"零个集合"过滤（不命中任何分块）。可访问集合为空的
// 用户由此得到空结果，而不会退化成无范围检索。
type VectorFilter struct {
	CollectionID  string
	CollectionIDs []string
	DocumentIDs   []string
}

// Empty 报告过滤条件是否为空（即不限范围）。
func (f VectorFilter) Empty() bool {
	return f.CollectionID == "" && f.CollectionIDs == nil && len(f.DocumentIDs) == 0
}
