// Package model 定义了与数据库表对应的 Go 结构体。
package model

// SearchResult 是一次相似度检索的单条命中，仅在内存中组装，不落库。
// similarity_score = 1 - distance（余弦距离），1.0 表示语义完全一致。
type SearchResult struct {
	Chunk           Chunk    `json:"chunk"`
	Document        Document `json:"document"`
	SimilarityScore float64  `json:"similarityScore"`
	Distance        float64  `json:"distance"`
}

// ConfidenceTier 表示单条引用的可信档位。
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// Citation 是回答中实际引用到的来源片段，由检索命中派生，不落库
// （持久化问答记录时整体序列化进 queries.sources）。
type Citation struct {
	Ordinal         int            `json:"ordinal"`
	Text            string         `json:"text"`
	DocumentID      string         `json:"documentId"`
	DocumentTitle   string         `json:"documentTitle"`
	ChunkIndex      int            `json:"chunkIndex"`
	SimilarityScore float64        `json:"similarityScore"`
	Rank            int            `json:"rank"`
	ConfidenceTier  ConfidenceTier `json:"confidenceTier"`
	StartChar       int            `json:"startChar"`
	EndChar         int            `json:"endChar"`
}

// ValidationReport 是对生成回答的引用质量检查结论。
type ValidationReport struct {
	IsValid      bool     `json:"isValid"`
	Issues       []string `json:"issues"`
	QualityScore float64  `json:"qualityScore"`
}
