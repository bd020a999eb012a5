package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/log"
)

const collectionPageSize = 20

// CollectionService 接口定义了知识集合及其成员关系的业务操作。
// 集合是文档归属与访问控制的边界：成员管理与删除只有拥有者可以执行。
type CollectionService interface {
	Create(userID uint, name, description string, isPublic bool) (*model.Collection, error)
	List(userID uint, page, pageSize int) ([]model.Collection, int64, error)
	Get(userID uint, collectionID string) (*model.Collection, error)
	Update(userID uint, collectionID, name, description string, isPublic bool) (*model.Collection, error)
	// Delete 级联删除集合：全部文档的分块、向量索引、存储对象与文档记录，
	// 最后删除成员关系与集合本身。
	Delete(ctx context.Context, userID uint, collectionID string) error

	AddMember(ownerID uint, collectionID string, memberID uint, role model.CollectionRole) error
	UpdateMemberRole(ownerID uint, collectionID string, memberID uint, role model.CollectionRole) error
	RemoveMember(ownerID uint, collectionID string, memberID uint) error
	ListMembers(userID uint, collectionID string) ([]model.CollectionMember, error)
}

type collectionService struct {
	collectionRepo repository.CollectionRepository
	documentRepo   repository.DocumentRepository
	chunkRepo      repository.ChunkRepository
	userRepo       repository.UserRepository
	permissions    PermissionService
	store          ObjectStore
	vectorIndex    VectorIndex
}

// NewCollectionService 创建一个新的 CollectionService 实例。
func NewCollectionService(
	collectionRepo repository.CollectionRepository,
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	userRepo repository.UserRepository,
	permissions PermissionService,
	store ObjectStore,
	vectorIndex VectorIndex,
) CollectionService {
	return &collectionService{
		collectionRepo: collectionRepo,
		documentRepo:   documentRepo,
		chunkRepo:      chunkRepo,
		userRepo:       userRepo,
		permissions:    permissions,
		store:          store,
		vectorIndex:    vectorIndex,
	}
}

// Create 创建一个新集合，拥有者同时写入成员表。
func (s *collectionService) Create(userID uint, name, description string, isPublic bool) (*model.Collection, error) {
	if name == "" {
		return nil, NewValidationError("集合名称不能为空")
	}

	collection := &model.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     userID,
		IsPublic:    isPublic,
	}
	if err := s.collectionRepo.Create(collection); err != nil {
		log.Errorf("[CollectionService] 创建集合失败: %v", err)
		return nil, fmt.Errorf("创建集合失败: %w", err)
	}
	log.Infof("[CollectionService] 集合创建成功, collectionID: %s, name: %s", collection.ID, name)
	return collection, nil
}

// List 分页返回用户可访问的集合。
func (s *collectionService) List(userID uint, page, pageSize int) ([]model.Collection, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = collectionPageSize
	}
	return s.collectionRepo.FindWithPagination(userID, (page-1)*pageSize, pageSize)
}

// Get 返回单个集合，无只读权限的用户按集合不存在处理。
func (s *collectionService) Get(userID uint, collectionID string) (*model.Collection, error) {
	collection, err := s.collectionRepo.FindByID(collectionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.permissions.CanAccess(userID, collectionID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return collection, nil
}

// Update 更新集合的名称、描述与公开标记，仅拥有者可执行。
func (s *collectionService) Update(userID uint, collectionID, name, description string, isPublic bool) (*model.Collection, error) {
	collection, err := s.loadOwned(userID, collectionID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, NewValidationError("集合名称不能为空")
	}

	collection.Name = name
	collection.Description = description
	collection.IsPublic = isPublic
	if err := s.collectionRepo.Update(collection); err != nil {
		log.Errorf("[CollectionService] 更新集合失败, collectionID: %s, err: %v", collectionID, err)
		return nil, fmt.Errorf("更新集合失败: %w", err)
	}
	return collection, nil
}

// Delete 级联删除集合及其全部文档数据。
// 各步骤按 分块 → 向量索引 → 存储对象 → 文档记录 → 集合 的顺序执行，
// 每一步都幂等，中途失败后可以安全地整体重试。
func (s *collectionService) Delete(ctx context.Context, userID uint, collectionID string) error {
	if _, err := s.loadOwned(userID, collectionID); err != nil {
		return err
	}

	documentIDs, err := s.documentRepo.ListIDsByCollection(collectionID)
	if err != nil {
		return fmt.Errorf("查询集合文档失败: %w", err)
	}
	log.Infof("[CollectionService] 开始删除集合, collectionID: %s, 文档数: %d", collectionID, len(documentIDs))

	log.Infof("[CollectionService] 步骤1: 删除全部分块")
	if err := s.chunkRepo.DeleteByDocuments(documentIDs); err != nil {
		return fmt.Errorf("删除集合分块失败: %w", err)
	}

	log.Infof("[CollectionService] 步骤2: 删除向量索引")
	if err := s.vectorIndex.DeleteByCollectionID(ctx, collectionID); err != nil {
		return fmt.Errorf("删除集合向量索引失败: %w", err)
	}

	log.Infof("[CollectionService] 步骤3: 删除存储对象")
	if err := s.store.RemovePrefix(ctx, fmt.Sprintf("documents/%s/", collectionID)); err != nil {
		return fmt.Errorf("删除集合存储对象失败: %w", err)
	}

	log.Infof("[CollectionService] 步骤4: 删除文档记录")
	if err := s.documentRepo.DeleteByCollection(collectionID); err != nil {
		return fmt.Errorf("删除集合文档记录失败: %w", err)
	}

	log.Infof("[CollectionService] 步骤5: 删除成员关系与集合")
	if err := s.collectionRepo.Delete(collectionID); err != nil {
		return fmt.Errorf("删除集合失败: %w", err)
	}

	log.Infof("[CollectionService] 集合删除完成, collectionID: %s", collectionID)
	return nil
}

// AddMember 把用户加入集合，仅拥有者可执行。
func (s *collectionService) AddMember(ownerID uint, collectionID string, memberID uint, role model.CollectionRole) error {
	collection, err := s.loadOwned(ownerID, collectionID)
	if err != nil {
		return err
	}
	if err := validateMemberRole(role); err != nil {
		return err
	}
	if memberID == collection.OwnerID {
		return NewValidationError("拥有者无需添加为成员")
	}

	if _, err := s.userRepo.FindByID(memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError("用户不存在")
		}
		return err
	}

	if _, err := s.collectionRepo.FindMember(collectionID, memberID); err == nil {
		return NewValidationError("该用户已是集合成员")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	member := &model.CollectionMember{
		CollectionID: collectionID,
		UserID:       memberID,
		Role:         role,
	}
	if err := s.collectionRepo.AddMember(member); err != nil {
		log.Errorf("[CollectionService] 添加成员失败, collectionID: %s, userID: %d, err: %v", collectionID, memberID, err)
		return fmt.Errorf("添加成员失败: %w", err)
	}
	log.Infof("[CollectionService] 成员已添加, collectionID: %s, userID: %d, role: %s", collectionID, memberID, role)
	return nil
}

// UpdateMemberRole 调整成员角色，仅拥有者可执行，拥有者自身的角色不可变。
func (s *collectionService) UpdateMemberRole(ownerID uint, collectionID string, memberID uint, role model.CollectionRole) error {
	collection, err := s.loadOwned(ownerID, collectionID)
	if err != nil {
		return err
	}
	if err := validateMemberRole(role); err != nil {
		return err
	}
	if memberID == collection.OwnerID {
		return NewValidationError("不能修改拥有者的角色")
	}
	return s.collectionRepo.UpdateMemberRole(collectionID, memberID, role)
}

// RemoveMember 移除成员，仅拥有者可执行，拥有者自身不可移除。
func (s *collectionService) RemoveMember(ownerID uint, collectionID string, memberID uint) error {
	collection, err := s.loadOwned(ownerID, collectionID)
	if err != nil {
		return err
	}
	if memberID == collection.OwnerID {
		return NewValidationError("不能移除集合的拥有者")
	}
	return s.collectionRepo.RemoveMember(collectionID, memberID)
}

// ListMembers 返回集合的全部成员，需要只读权限。
func (s *collectionService) ListMembers(userID uint, collectionID string) ([]model.CollectionMember, error) {
	ok, err := s.permissions.CanAccess(userID, collectionID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.collectionRepo.ListMembers(collectionID)
}

// loadOwned 加载集合并校验调用方是拥有者。
// 能看到集合但不是拥有者 → 权限错误；连看都看不到 → 按不存在处理。
func (s *collectionService) loadOwned(userID uint, collectionID string) (*model.Collection, error) {
	collection, err := s.collectionRepo.FindByID(collectionID)
	if err != nil {
		return nil, err
	}
	if collection.OwnerID == userID {
		return collection, nil
	}

	viewable, err := s.permissions.CanAccess(userID, collectionID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	if !viewable {
		return nil, gorm.ErrRecordNotFound
	}
	return nil, ErrPermissionDenied
}

// validateMemberRole 校验成员角色取值，owner 只能通过创建集合获得。
func validateMemberRole(role model.CollectionRole) error {
	if role != model.RoleEditor && role != model.RoleViewer {
		return NewValidationError("成员角色只能是 editor 或 viewer")
	}
	return nil
}
