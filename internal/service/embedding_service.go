package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/embedding"
	"zhiwen-go/pkg/log"
	"zhiwen-go/pkg/retry"
)

const (
	defaultEmbedBatchSize   = 100
	defaultBatchIntervalMs  = 100
	defaultEmbedMaxRetries  = 3
	defaultEmbedBackoffSecs = 4
	defaultEmbedBackoffCap  = 10
)

// EmbeddingService 接口定义了文本向量化操作。
// 在嵌入供应商客户端之上补充分批、限速、限流重试与落库逻辑。
type EmbeddingService interface {
	// EmbedText 生成单条文本的向量，空文本直接报错，不调用供应商。
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 批量生成向量，返回值与入参等长且顺序一致；
	// 空白文本不发给供应商，对应位置返回 nil。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedDocumentChunks 为文档的分块生成并保存向量，返回本次嵌入的分块数。
	// force 为 false 时只处理尚无向量的分块，已嵌入的分块不会被改动。
	EmbedDocumentChunks(ctx context.Context, document *model.Document, force bool) (int, error)
}

type embeddingService struct {
	client      embedding.Client
	chunkRepo   repository.ChunkRepository
	vectorIndex VectorIndex
	batchSize   int
	limiter     *rate.Limiter
	retryPolicy retry.Policy
}

// NewEmbeddingService 创建一个新的 EmbeddingService 实例。
func NewEmbeddingService(
	cfg config.EmbeddingConfig,
	client embedding.Client,
	chunkRepo repository.ChunkRepository,
	vectorIndex VectorIndex,
) EmbeddingService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	intervalMs := cfg.BatchIntervalMs
	if intervalMs <= 0 {
		intervalMs = defaultBatchIntervalMs
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultEmbedMaxRetries
	}
	backoff := cfg.BackoffSeconds
	if backoff <= 0 {
		backoff = defaultEmbedBackoffSecs
	}
	backoffCap := cfg.BackoffCapSecs
	if backoffCap <= 0 {
		backoffCap = defaultEmbedBackoffCap
	}

	return &embeddingService{
		client:      client,
		chunkRepo:   chunkRepo,
		vectorIndex: vectorIndex,
		batchSize:   batchSize,
		// 桶容量为 1：首个批次立即放行，后续批次间隔固定的冷却时间。
		limiter: rate.NewLimiter(rate.Every(time.Duration(intervalMs)*time.Millisecond), 1),
		retryPolicy: retry.Policy{
			MaxAttempts:    maxRetries,
			InitialBackoff: time.Duration(backoff) * time.Second,
			MaxBackoff:     time.Duration(backoffCap) * time.Second,
			Multiplier:     2,
			// 只有限流错误值得重试，鉴权失败等立即上抛。
			Retryable: embedding.IsRateLimit,
		},
	}
}

// EmbedText 生成单条文本的向量。
func (s *embeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewValidationError("待嵌入的文本不能为空")
	}

	var vector []float32
	err := s.retryPolicy.Do(ctx, func() error {
		var callErr error
		vector, callErr = s.client.CreateEmbedding(ctx, text)
		if embedding.IsRateLimit(callErr) {
			log.Warnf("[EmbeddingService] 触发供应商限流，准备重试")
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("生成文本向量失败: %w", err)
	}
	return vector, nil
}

// EmbedBatch 批量生成向量。
// 入参按固定批次大小切分，批内剔除空白文本后调用供应商，
// 结果按原始下标放回，保证返回值与入参一一对应。
func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewValidationError("待嵌入的文本列表不能为空")
	}

	totalBatches := (len(texts) + s.batchSize - 1) / s.batchSize
	log.Infof("[EmbeddingService] 开始批量嵌入 %d 条文本, 批次大小 %d, 共 %d 批", len(texts), s.batchSize, totalBatches)

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchNum := start/s.batchSize + 1

		positions := make([]int, 0, end-start)
		valid := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			if strings.TrimSpace(texts[i]) == "" {
				continue
			}
			positions = append(positions, i)
			valid = append(valid, texts[i])
		}
		if len(valid) == 0 {
			log.Warnf("[EmbeddingService] 第 %d/%d 批没有有效文本，跳过", batchNum, totalBatches)
			continue
		}

		// 批次间固定间隔，避免触发供应商限流。
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var batchVectors [][]float32
		err := s.retryPolicy.Do(ctx, func() error {
			var callErr error
			batchVectors, callErr = s.client.CreateEmbeddings(ctx, valid)
			if embedding.IsRateLimit(callErr) {
				log.Warnf("[EmbeddingService] 第 %d/%d 批触发供应商限流，准备重试", batchNum, totalBatches)
			}
			return callErr
		})
		if err != nil {
			log.Errorf("[EmbeddingService] 第 %d/%d 批嵌入失败: %v", batchNum, totalBatches, err)
			return nil, fmt.Errorf("批量生成向量失败: %w", err)
		}

		for j, pos := range positions {
			vectors[pos] = batchVectors[j]
		}
		log.Infof("[EmbeddingService] 第 %d/%d 批完成, 生成 %d 条向量", batchNum, totalBatches, len(batchVectors))
	}
	return vectors, nil
}

// EmbedDocumentChunks 为文档的分块生成并保存向量。
// 先写向量索引再写分块行：索引按 chunk_id 幂等覆盖，分块行里的
// 空向量是重试依据，这个顺序保证任何一步失败后 force=false 重试
// 都能把两边补齐。已写入的分块不受后续失败影响。
func (s *embeddingService) EmbedDocumentChunks(ctx context.Context, document *model.Document, force bool) (int, error) {
	chunks, err := s.chunkRepo.FindByDocumentOrdered(document.ID)
	if err != nil {
		return 0, fmt.Errorf("加载文档分块失败: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("文档 %s 没有可嵌入的分块", document.ID)
	}

	toEmbed := chunks
	if !force {
		toEmbed = make([]model.Chunk, 0, len(chunks))
		for _, chunk := range chunks {
			if !chunk.Embedded() {
				toEmbed = append(toEmbed, chunk)
			}
		}
	}
	if len(toEmbed) == 0 {
		log.Infof("[EmbeddingService] 文档 %s 的 %d 个分块已全部嵌入", document.ID, len(chunks))
		return 0, nil
	}
	log.Infof("[EmbeddingService] 文档 %s 需要嵌入 %d/%d 个分块", document.ID, len(toEmbed), len(chunks))

	texts := make([]string, len(toEmbed))
	for i, chunk := range toEmbed {
		texts[i] = chunk.Text
	}

	vectors, err := s.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for i, chunk := range toEmbed {
		if vectors[i] == nil {
			log.Warnf("[EmbeddingService] 分块 %s 文本为空，跳过嵌入", chunk.ID)
			continue
		}
		if err := s.vectorIndex.IndexChunk(ctx, model.ChunkDocument{
			ChunkID:      chunk.ID,
			DocumentID:   document.ID,
			CollectionID: document.CollectionID,
			ChunkIndex:   chunk.ChunkIndex,
			Text:         chunk.Text,
			Embedding:    vectors[i],
		}); err != nil {
			return embedded, fmt.Errorf("索引分块 %s 的向量失败: %w", chunk.ID, err)
		}
		if err := s.chunkRepo.UpdateEmbedding(chunk.ID, model.Vector(vectors[i])); err != nil {
			return embedded, fmt.Errorf("保存分块 %s 的向量失败: %w", chunk.ID, err)
		}
		embedded++
	}

	log.Infof("[EmbeddingService] 文档 %s 嵌入完成, 共写入 %d 个分块向量", document.ID, embedded)
	return embedded, nil
}
