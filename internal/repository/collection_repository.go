package repository

import (
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
)

// CollectionRepository 定义了知识集合及其成员关系的持久化操作。
type CollectionRepository interface {
	Create(collection *model.Collection) error
	FindByID(id string) (*model.Collection, error)
	Update(collection *model.Collection) error
	Delete(id string) error
	FindWithPagination(userID uint, offset, limit int) ([]model.Collection, int64, error)
	// AccessibleIDs 返回用户可访问的全部集合 ID：拥有的、被加为成员的、公开的。
	AccessibleIDs(userID uint) ([]string, error)

	AddMember(member *model.CollectionMember) error
	FindMember(collectionID string, userID uint) (*model.CollectionMember, error)
	UpdateMemberRole(collectionID string, userID uint, role model.CollectionRole) error
	RemoveMember(collectionID string, userID uint) error
	ListMembers(collectionID string) ([]model.CollectionMember, error)
}

type collectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository 创建一个新的 CollectionRepository 实例。
func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

// Create 在一个事务里创建集合并把拥有者写入成员表。
func (r *collectionRepository) Create(collection *model.Collection) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(collection).Error; err != nil {
			return err
		}
		owner := &model.CollectionMember{
			CollectionID: collection.ID,
			UserID:       collection.OwnerID,
			Role:         model.RoleOwner,
		}
		return tx.Create(owner).Error
	})
}

// FindByID 根据集合 ID 查找集合。
func (r *collectionRepository) FindByID(id string) (*model.Collection, error) {
	var collection model.Collection
	err := r.db.Where("id = ?", id).First(&collection).Error
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

// Update 更新一个已存在的集合记录。
func (r *collectionRepository) Update(collection *model.Collection) error {
	return r.db.Save(collection).Error
}

// Delete 在一个事务里删除集合与其全部成员关系。
// 文档与分块的级联清理由服务层负责（还涉及对象存储与向量索引）。
func (r *collectionRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&model.CollectionMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Collection{}).Error
	})
}

// FindWithPagination 分页返回用户可访问的集合。
func (r *collectionRepository) FindWithPagination(userID uint, offset, limit int) ([]model.Collection, int64, error) {
	ids, err := r.AccessibleIDs(userID)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []model.Collection{}, 0, nil
	}

	db := r.db.Model(&model.Collection{}).Where("id IN ?", ids)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var collections []model.Collection
	err = db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&collections).Error
	if err != nil {
		return nil, 0, err
	}
	return collections, total, nil
}

// AccessibleIDs 返回用户可访问的全部集合 ID。
func (r *collectionRepository) AccessibleIDs(userID uint) ([]string, error) {
	var memberIDs []string
	err := r.db.Model(&model.CollectionMember{}).
		Where("user_id = ?", userID).
		Pluck("collection_id", &memberIDs).Error
	if err != nil {
		return nil, err
	}

	var publicIDs []string
	err = r.db.Model(&model.Collection{}).
		Where("is_public = ?", true).
		Pluck("id", &publicIDs).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(memberIDs)+len(publicIDs))
	ids := make([]string, 0, len(memberIDs)+len(publicIDs))
	for _, id := range append(memberIDs, publicIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddMember 新增一条成员关系。
func (r *collectionRepository) AddMember(member *model.CollectionMember) error {
	return r.db.Create(member).Error
}

// FindMember 查找指定集合里的成员关系，不存在时返回 gorm.ErrRecordNotFound。
func (r *collectionRepository) FindMember(collectionID string, userID uint) (*model.CollectionMember, error) {
	var member model.CollectionMember
	err := r.db.Where("collection_id = ? AND user_id = ?", collectionID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMemberRole 更新成员角色，成员不存在时返回 gorm.ErrRecordNotFound。
func (r *collectionRepository) UpdateMemberRole(collectionID string, userID uint, role model.CollectionRole) error {
	result := r.db.Model(&model.CollectionMember{}).
		Where("collection_id = ? AND user_id = ?", collectionID, userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemoveMember 移除成员关系。
func (r *collectionRepository) RemoveMember(collectionID string, userID uint) error {
	return r.db.Where("collection_id = ? AND user_id = ?", collectionID, userID).
		Delete(&model.CollectionMember{}).Error
}

// ListMembers 返回集合的全部成员。
func (r *collectionRepository) ListMembers(collectionID string) ([]model.CollectionMember, error) {
	var members []model.CollectionMember
	err := r.db.Where("collection_id = ?", collectionID).Find(&members).Error
	return members, err
}
