// Package pipeline 实现文档处理流水线：抽取 → 分块 → 嵌入。
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"zhiwen-go/internal/chunker"
	"zhiwen-go/internal/extractor"
	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/log"
)

// ObjectGetter 读取对象存储中已上传的原始文件。
type ObjectGetter interface {
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// ChunkEmbedder 为文档的分块生成并保存向量。
type ChunkEmbedder interface {
	EmbedDocumentChunks(ctx context.Context, document *model.Document, force bool) (int, error)
}

// Processor 驱动单个文档走完处理状态机：
//
//	uploaded → processing → {processed, failed}
//
// 没有可用抽取器或抽取失败是硬失败，文档进入 failed。
// 抽取成功之后分块或嵌入再失败只降级：文档仍标记 processed，
// 错误以注释形式写入 processing_error，检索召回变差但文档本身可用。
// 一旦开始处理就不支持取消，流水线总会走到一个终态。
type Processor struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	store        ObjectGetter
	registry     *extractor.Registry
	chunker      *chunker.Chunker
	embedder     ChunkEmbedder
	notifier     Notifier
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	store ObjectGetter,
	registry *extractor.Registry,
	chunker *chunker.Chunker,
	embedder ChunkEmbedder,
	notifier Notifier,
) *Processor {
	return &Processor{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		store:        store,
		registry:     registry,
		chunker:      chunker,
		embedder:     embedder,
		notifier:     notifier,
	}
}

// Process 是文档处理的唯一入口，重新处理与首次处理走同一条路径。
// 返回非 nil 错误表示还没到终态（基础设施故障），调用方可以整体重试；
// 返回 nil 表示文档已落在 processed 或 failed 终态。
func (p *Processor) Process(ctx context.Context, documentID string, force bool) error {
	document, err := p.documentRepo.FindByID(documentID)
	if err != nil {
		return fmt.Errorf("加载文档失败: %w", err)
	}
	log.Infof("[Processor] 开始处理文档, documentID: %s, name: %s, force: %v", document.ID, document.Name, force)

	// 步骤1: 进入 processing，清掉上一轮的结果字段
	if err := p.documentRepo.UpdateFields(document.ID, map[string]interface{}{
		"status":           model.DocStatusProcessing,
		"processing_error": nil,
		"processed_at":     nil,
	}); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	p.notify(ctx, document, EventProcessingStarted, nil)

	// 步骤2: 按声明的媒体类型选择抽取器
	ext, ok := p.registry.Find(document.MediaType)
	if !ok {
		return p.fail(ctx, document, fmt.Sprintf("No extractor available for media type: %s", document.MediaType))
	}
	log.Infof("[Processor] 步骤2: 使用抽取器 %s, mediaType: %s", ext.Name(), document.MediaType)

	// 步骤3: 读取原始文件并抽取文本
	object, err := p.store.Get(ctx, document.StoragePath)
	if err != nil {
		// 对象存储暂时不可用不算终态，交给上层按任务重试
		return fmt.Errorf("读取原始文件失败: %w", err)
	}
	result, err := ext.Extract(ctx, object, document.Name)
	object.Close()
	if err != nil {
		return p.fail(ctx, document, err.Error())
	}
	log.Infof("[Processor] 步骤3: 文本抽取成功, 长度: %d 字符", utf8.RuneCountInString(result.Text))

	// 步骤4: 保存抽取文本与抽取元数据
	if err := p.documentRepo.UpdateFields(document.ID, map[string]interface{}{
		"extracted_text": result.Text,
		"metadata":       result.Metadata,
	}); err != nil {
		return fmt.Errorf("保存抽取文本失败: %w", err)
	}
	p.notify(ctx, document, EventTextExtracted, map[string]interface{}{
		"characters": utf8.RuneCountInString(result.Text),
	})

	// 步骤5: 分块并整体替换该文档的分块记录
	annotation := ""
	drafts := p.chunker.Chunk(result.Text)
	chunkCount := len(drafts)
	if chunkCount > 0 {
		if err := p.chunkRepo.ReplaceForDocument(document.ID, buildChunkRecords(document, result.Metadata, drafts)); err != nil {
			log.Errorf("[Processor] 保存分块失败, documentID: %s, err: %v", document.ID, err)
			annotation = fmt.Sprintf("Chunking failed: %v", err)
			chunkCount = 0
		} else {
			log.Infof("[Processor] 步骤5: 分块完成, 共 %d 个分块", chunkCount)
			p.notify(ctx, document, EventChunksCreated, map[string]interface{}{"count": chunkCount})
		}
	} else {
		log.Warnf("[Processor] 文档未产生任何分块, documentID: %s", document.ID)
	}

	// 步骤6: 为分块生成向量
	embedded := 0
	if annotation == "" && chunkCount > 0 {
		embedded, err = p.embedder.EmbedDocumentChunks(ctx, document, force)
		if err != nil {
			log.Errorf("[Processor] 分块嵌入失败, documentID: %s, err: %v", document.ID, err)
			annotation = fmt.Sprintf("Embeddings failed: %v", err)
		}
	}

	// 步骤7: 标记 processed，降级时把失败原因写成注释
	fields := map[string]interface{}{
		"status":           model.DocStatusProcessed,
		"processed_at":     time.Now(),
		"processing_error": nil,
	}
	if annotation != "" {
		fields["processing_error"] = annotation
	}
	if err := p.documentRepo.UpdateFields(document.ID, fields); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	p.notify(ctx, document, EventProcessingCompleted, map[string]interface{}{
		"chunk_count":    chunkCount,
		"embedded_count": embedded,
	})
	log.Infof("[Processor] 文档处理完成, documentID: %s, 分块: %d, 嵌入: %d", document.ID, chunkCount, embedded)
	return nil
}

// fail 把文档置为 failed 终态并发布失败事件。
// 终态本身写不进去时返回错误，让上层重试整个任务。
func (p *Processor) fail(ctx context.Context, document *model.Document, cause string) error {
	log.Warnf("[Processor] 文档处理失败, documentID: %s, 原因: %s", document.ID, cause)
	if err := p.documentRepo.UpdateFields(document.ID, map[string]interface{}{
		"status":           model.DocStatusFailed,
		"processing_error": cause,
		"processed_at":     nil,
	}); err != nil {
		return fmt.Errorf("更新文档失败状态失败: %w", err)
	}
	p.notify(ctx, document, EventProcessingFailed, map[string]interface{}{"error": cause})
	return nil
}

// notify 发布进度事件，失败只记日志。
func (p *Processor) notify(ctx context.Context, document *model.Document, event string, payload map[string]interface{}) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, document.ID, document.CollectionID, event, payload); err != nil {
		log.Warnf("[Processor] 进度通知发送失败, documentID: %s, event: %s, err: %v", document.ID, event, err)
	}
}

// buildChunkRecords 把分块草稿转成落库记录，元数据继承抽取元数据并附上句子数。
func buildChunkRecords(document *model.Document, inherited model.JSONMap, drafts []chunker.Chunk) []model.Chunk {
	records := make([]model.Chunk, 0, len(drafts))
	for _, d := range drafts {
		metadata := make(model.JSONMap, len(inherited)+3)
		for k, v := range inherited {
			metadata[k] = v
		}
		metadata["document_name"] = document.Name
		metadata["collection_id"] = document.CollectionID
		metadata["sentence_count"] = d.SentenceCount
		records = append(records, model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: document.ID,
			ChunkIndex: d.Index,
			Text:       d.Text,
			TokenCount: d.TokenCount,
			StartChar:  d.StartChar,
			EndChar:    d.EndChar,
			Metadata:   metadata,
		})
	}
	return records
}
