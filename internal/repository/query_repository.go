package repository

import (
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
)

// QueryRepository 定义了问答记录的持久化操作。
type QueryRepository interface {
	Create(query *model.Query) error
	FindByID(id string) (*model.Query, error)
	FindWithPagination(userID uint, offset, limit int) ([]model.Query, int64, error)
	Update(query *model.Query) error
}

type queryRepository struct {
	db *gorm.DB
}

// NewQueryRepository 创建一个新的 QueryRepository 实例。
func NewQueryRepository(db *gorm.DB) QueryRepository {
	return &queryRepository{db: db}
}

// Create 创建一条新的问答记录。
func (r *queryRepository) Create(query *model.Query) error {
	return r.db.Create(query).Error
}

// FindByID 根据记录 ID 查找问答记录。
func (r *queryRepository) FindByID(id string) (*model.Query, error) {
	var query model.Query
	err := r.db.Where("id = ?", id).First(&query).Error
	if err != nil {
		return nil, err
	}
	return &query, nil
}

// FindWithPagination 分页返回用户的问答历史，按创建时间倒序。
func (r *queryRepository) FindWithPagination(userID uint, offset, limit int) ([]model.Query, int64, error) {
	db := r.db.Model(&model.Query{}).Where("user_id = ?", userID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var queries []model.Query
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&queries).Error
	if err != nil {
		return nil, 0, err
	}
	return queries, total, nil
}

// Update 更新问答记录。
func (r *queryRepository) Update(query *model.Query) error {
	return r.db.Save(query).Error
}
