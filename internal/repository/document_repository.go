package repository

import (
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
)

// DocumentRepository 定义了文档记录的持久化操作。
type DocumentRepository interface {
	Create(document *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindByIDs(ids []string) ([]model.Document, error)
	FindWithPagination(collectionID string, offset, limit int) ([]model.Document, int64, error)
	// UpdateFields 只更新给定字段，用于处理流水线的状态推进。
	UpdateFields(id string, fields map[string]interface{}) error
	Delete(id string) error
	DeleteByCollection(collectionID string) error
	ListIDsByCollection(collectionID string) ([]string, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建一条新的文档记录。
func (r *documentRepository) Create(document *model.Document) error {
	return r.db.Create(document).Error
}

// FindByID 根据文档 ID 查找文档。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var document model.Document
	err := r.db.Where("id = ?", id).First(&document).Error
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// FindByIDs 根据一组文档 ID 批量查找文档，结果顺序不保证与入参一致。
func (r *documentRepository) FindByIDs(ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return []model.Document{}, nil
	}
	var documents []model.Document
	err := r.db.Where("id IN ?", ids).Find(&documents).Error
	return documents, err
}

// FindWithPagination 分页返回集合下的文档，按上传时间倒序。
func (r *documentRepository) FindWithPagination(collectionID string, offset, limit int) ([]model.Document, int64, error) {
	db := r.db.Model(&model.Document{}).Where("collection_id = ?", collectionID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var documents []model.Document
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&documents).Error
	if err != nil {
		return nil, 0, err
	}
	return documents, total, nil
}

// UpdateFields 只更新给定字段。
func (r *documentRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除文档记录。分块、对象存储与向量索引的清理由服务层负责。
func (r *documentRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Document{}).Error
}

// DeleteByCollection 删除集合下的全部文档记录。
func (r *documentRepository) DeleteByCollection(collectionID string) error {
	return r.db.Where("collection_id = ?", collectionID).Delete(&model.Document{}).Error
}

// ListIDsByCollection 返回集合下全部文档 ID，用于删除集合时的级联清理。
func (r *documentRepository) ListIDsByCollection(collectionID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.Document{}).
		Where("collection_id = ?", collectionID).
		Pluck("id", &ids).Error
	return ids, err
}
