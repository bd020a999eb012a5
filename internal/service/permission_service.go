package service

import (
	"errors"

	"gorm.io/gorm"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/log"
)

// PermissionService 接口定义了集合级别的访问控制判断。
// 检索与问答在构造过滤范围前先经过这里，索引层自身不做鉴权。
type PermissionService interface {
	// CanAccess 判断用户对集合是否拥有不低于 minRole 的权限。
	// 集合不存在视为无权限，不返回错误。
	CanAccess(userID uint, collectionID string, minRole model.CollectionRole) (bool, error)
	// AccessibleCollectionIDs 返回用户可检索的全部集合 ID。
	AccessibleCollectionIDs(userID uint) ([]string, error)
}

type permissionService struct {
	collectionRepo repository.CollectionRepository
}

// NewPermissionService 创建一个新的 PermissionService 实例。
func NewPermissionService(collectionRepo repository.CollectionRepository) PermissionService {
	return &permissionService{collectionRepo: collectionRepo}
}

// CanAccess 判断用户对集合是否拥有不低于 minRole 的权限。
// 判定顺序：集合拥有者 > 成员角色 > 公开集合的只读访问。
func (s *permissionService) CanAccess(userID uint, collectionID string, minRole model.CollectionRole) (bool, error) {
	collection, err := s.collectionRepo.FindByID(collectionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		log.Errorf("[PermissionService] 查询集合失败, collectionID: %s, err: %v", collectionID, err)
		return false, err
	}

	if collection.OwnerID == userID {
		return true, nil
	}

	member, err := s.collectionRepo.FindMember(collectionID, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[PermissionService] 查询成员关系失败, collectionID: %s, userID: %d, err: %v", collectionID, userID, err)
		return false, err
	}
	if member != nil && member.Role.AtLeast(minRole) {
		return true, nil
	}

	// 公开集合对任何登录用户开放只读访问。
	if collection.IsPublic && model.RoleViewer.AtLeast(minRole) {
		return true, nil
	}
	return false, nil
}

// AccessibleCollectionIDs 返回用户可检索的全部集合 ID。
func (s *permissionService) AccessibleCollectionIDs(userID uint) ([]string, error) {
	return s.collectionRepo.AccessibleIDs(userID)
}
