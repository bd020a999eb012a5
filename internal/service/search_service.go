package service

import (
	"context"
	"fmt"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/log"
)

const (
	searchLimitMax = 100
)

// SearchService 接口定义了分块级的相似度检索。
// 范围过滤只做数据筛选，不做鉴权；调用方需要先通过 PermissionService
// 把 scope 收敛到自己可访问的集合。
type SearchService interface {
	// Search 先将查询文本向量化（带 Redis 缓存），再执行向量检索。
	Search(ctx context.Context, queryText string, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error)
	// SearchByEmbedding 用现成的查询向量检索，避免重复嵌入。
	SearchByEmbedding(ctx context.Context, vector []float32, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error)
}

type searchService struct {
	embeddingService EmbeddingService
	embeddingCache   repository.EmbeddingCache
	vectorIndex      VectorIndex
	chunkRepo        repository.ChunkRepository
	documentRepo     repository.DocumentRepository
	dims             int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(
	embeddingCfg config.EmbeddingConfig,
	embeddingService EmbeddingService,
	embeddingCache repository.EmbeddingCache,
	vectorIndex VectorIndex,
	chunkRepo repository.ChunkRepository,
	documentRepo repository.DocumentRepository,
) SearchService {
	return &searchService{
		embeddingService: embeddingService,
		embeddingCache:   embeddingCache,
		vectorIndex:      vectorIndex,
		chunkRepo:        chunkRepo,
		documentRepo:     documentRepo,
		dims:             embeddingCfg.Dimensions,
	}
}

// Search 先将查询文本向量化，再执行向量检索。
// 任何入参校验失败都在调用嵌入供应商之前返回。
func (s *searchService) Search(ctx context.Context, queryText string, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error) {
	if queryText == "" {
		return nil, NewValidationError("查询文本不能为空")
	}
	if err := validateSearchParams(limit, threshold); err != nil {
		return nil, err
	}

	vector, err := s.queryVector(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return s.SearchByEmbedding(ctx, vector, scope, limit, threshold)
}

// SearchByEmbedding 用现成的查询向量检索。
// 返回结果按相似度降序，低于阈值的命中被丢弃。
func (s *searchService) SearchByEmbedding(ctx context.Context, vector []float32, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error) {
	if err := validateSearchParams(limit, threshold); err != nil {
		return nil, err
	}
	if s.dims > 0 && len(vector) != s.dims {
		return nil, NewValidationError("查询向量维度 %d 与索引维度 %d 不一致", len(vector), s.dims)
	}

	hits, err := s.vectorIndex.SearchByVector(ctx, vector, scope, limit)
	if err != nil {
		log.Errorf("[SearchService] 向量检索失败: %v", err)
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	if len(hits) == 0 {
		log.Infof("[SearchService] 向量检索命中 0 条")
		return []model.SearchResult{}, nil
	}

	results, err := s.assembleResults(hits, threshold)
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] 向量检索完成, 命中 %d 条, 过滤后返回 %d 条", len(hits), len(results))
	return results, nil
}

// queryVector 返回查询文本的向量，优先走 Redis 缓存。
// 缓存读写失败只记日志，降级为直接调用嵌入服务。
func (s *searchService) queryVector(ctx context.Context, queryText string) ([]float32, error) {
	cached, err := s.embeddingCache.Get(ctx, queryText)
	if err != nil {
		log.Warnf("[SearchService] 读取查询向量缓存失败: %v", err)
	} else if cached != nil {
		log.Debugf("[SearchService] 查询向量缓存命中")
		return cached, nil
	}

	vector, err := s.embeddingService.EmbedText(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}

	if err := s.embeddingCache.Set(ctx, queryText, vector); err != nil {
		log.Warnf("[SearchService] 写入查询向量缓存失败: %v", err)
	}
	return vector, nil
}

// assembleResults 用 MySQL 里的分块与文档行补全索引命中，组装最终结果。
// 索引与数据库间的孤儿命中直接跳过，只记一条告警。
func (s *searchService) assembleResults(hits []model.ChunkHit, threshold float64) ([]model.SearchResult, error) {
	chunkIDs := make([]string, 0, len(hits))
	docIDSet := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		chunkIDs = append(chunkIDs, hit.ChunkID)
		docIDSet[hit.DocumentID] = struct{}{}
	}
	docIDs := make([]string, 0, len(docIDSet))
	for id := range docIDSet {
		docIDs = append(docIDs, id)
	}

	chunks, err := s.chunkRepo.FindByIDs(chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("批量查询分块失败: %w", err)
	}
	documents, err := s.documentRepo.FindByIDs(docIDs)
	if err != nil {
		return nil, fmt.Errorf("批量查询文档失败: %w", err)
	}

	chunkByID := make(map[string]model.Chunk, len(chunks))
	for _, chunk := range chunks {
		chunkByID[chunk.ID] = chunk
	}
	docByID := make(map[string]model.Document, len(documents))
	for _, document := range documents {
		docByID[document.ID] = document
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < threshold {
			continue
		}
		chunk, ok := chunkByID[hit.ChunkID]
		if !ok {
			log.Warnf("[SearchService] 索引命中的分块 %s 在数据库中不存在，已跳过", hit.ChunkID)
			continue
		}
		document, ok := docByID[hit.DocumentID]
		if !ok {
			log.Warnf("[SearchService] 索引命中的文档 %s 在数据库中不存在，已跳过", hit.DocumentID)
			continue
		}
		results = append(results, model.SearchResult{
			Chunk:           chunk,
			Document:        document,
			SimilarityScore: hit.Similarity,
			Distance:        1 - hit.Similarity,
		})
	}
	return results, nil
}

// validateSearchParams 校验检索参数，违规时在任何外部调用之前返回错误。
func validateSearchParams(limit int, threshold float64) error {
	if limit < 1 || limit > searchLimitMax {
		return NewValidationError("limit 必须在 1 到 %d 之间", searchLimitMax)
	}
	if threshold < 0 || threshold > 1 {
		return NewValidationError("相似度阈值必须在 0 到 1 之间")
	}
	return nil
}
