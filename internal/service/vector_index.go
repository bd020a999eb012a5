package service

import (
	"context"

	"zhiwen-go/internal/model"
)

// VectorIndex 抽象分块向量索引的写入、删除与检索操作，
// 由 pkg/es 的 Elasticsearch 客户端实现。
type VectorIndex interface {
	IndexChunk(ctx context.Context, doc model.ChunkDocument) error
	DeleteByDocumentID(ctx context.Context, documentID string) error
	DeleteByCollectionID(ctx context.Context, collectionID string) error
	SearchByVector(ctx context.Context, vector []float32, filter model.VectorFilter, k int) ([]model.ChunkHit, error)
}
