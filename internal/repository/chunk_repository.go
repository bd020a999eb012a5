package repository

import (
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
)

// ChunkRepository 定义了文档分块的持久化操作。
type ChunkRepository interface {
	BatchCreate(chunks []model.Chunk) error
	FindByID(id string) (*model.Chunk, error)
	FindByIDs(ids []string) ([]model.Chunk, error)
	// FindByDocumentOrdered 按 chunk_index 升序返回某文档的全部分块。
	FindByDocumentOrdered(documentID string) ([]model.Chunk, error)
	UpdateEmbedding(id string, embedding model.Vector) error
	DeleteByDocument(documentID string) error
	DeleteByDocuments(documentIDs []string) error
	// ReplaceForDocument 在一个事务里删除旧分块并批量写入新分块，
	// 用于强制重新处理时保证不残留旧数据。
	ReplaceForDocument(documentID string, chunks []model.Chunk) error
	CountByDocument(documentID string) (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *chunkRepository) BatchCreate(chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	// 每100条记录一批
	return r.db.CreateInBatches(chunks, 100).Error
}

// FindByID 根据分块 ID 查找分块。
func (r *chunkRepository) FindByID(id string) (*model.Chunk, error) {
	var chunk model.Chunk
	err := r.db.Where("id = ?", id).First(&chunk).Error
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// FindByIDs 根据一组分块 ID 查找分块，结果顺序不保证与入参一致。
func (r *chunkRepository) FindByIDs(ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return []model.Chunk{}, nil
	}
	var chunks []model.Chunk
	err := r.db.Where("id IN ?", ids).Find(&chunks).Error
	return chunks, err
}

// FindByDocumentOrdered 按 chunk_index 升序返回某文档的全部分块。
func (r *chunkRepository) FindByDocumentOrdered(documentID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// UpdateEmbedding 写入单个分块的嵌入向量。
func (r *chunkRepository) UpdateEmbedding(id string, embedding model.Vector) error {
	return r.db.Model(&model.Chunk{}).
		Where("id = ?", id).
		Update("embedding", embedding).Error
}

// DeleteByDocument 删除某文档的全部分块。
func (r *chunkRepository) DeleteByDocument(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

// DeleteByDocuments 批量删除多个文档的分块，用于集合级联清理。
func (r *chunkRepository) DeleteByDocuments(documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return r.db.Where("document_id IN ?", documentIDs).Delete(&model.Chunk{}).Error
}

// ReplaceForDocument 在一个事务里删除旧分块并批量写入新分块。
func (r *chunkRepository) ReplaceForDocument(documentID string, chunks []model.Chunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		// 每100条记录一批
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// CountByDocument 统计某文档的分块数量。
func (r *chunkRepository) CountByDocument(documentID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}
