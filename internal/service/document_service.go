package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/repository"
	"zhiwen-go/pkg/log"
	"zhiwen-go/pkg/tasks"
)

const (
	documentPageSize    = 20
	documentPageSizeMax = 100
	downloadURLExpiry   = time.Hour
	fallbackMediaType   = "application/octet-stream"
)

// DownloadInfo 封装了文件下载链接所需的信息。
type DownloadInfo struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentPreview 封装了文档的纯文本预览内容。
// 文本在后台流水线完成提取前为空，调用方可根据状态提示用户。
type DocumentPreview struct {
	FileName string               `json:"fileName"`
	Status   model.DocumentStatus `json:"status"`
	Content  string               `json:"content"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
// 上传只负责落对象、建记录、派发处理任务；解析、分块与向量化
// 全部由后台流水线异步完成。
type DocumentService interface {
	Upload(ctx context.Context, userID uint, collectionID, fileName, mediaType string, size int64, file io.Reader) (*model.Document, error)
	List(userID uint, collectionID string, page, pageSize int) ([]model.Document, int64, error)
	// Get 返回文档详情及其分块数量。
	Get(userID uint, documentID string) (*model.Document, int64, error)
	Preview(userID uint, documentID string) (*DocumentPreview, error)
	Delete(ctx context.Context, userID uint, documentID string) error
	// Reprocess 强制重新走一遍处理流水线，已有分块会被整体替换。
	Reprocess(ctx context.Context, userID uint, documentID string) error
	DownloadURL(ctx context.Context, userID uint, documentID string) (*DownloadInfo, error)
}

type documentService struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	permissions  PermissionService
	store        ObjectStore
	dispatcher   TaskDispatcher
	vectorIndex  VectorIndex
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	permissions PermissionService,
	store ObjectStore,
	dispatcher TaskDispatcher,
	vectorIndex VectorIndex,
) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		permissions:  permissions,
		store:        store,
		dispatcher:   dispatcher,
		vectorIndex:  vectorIndex,
	}
}

// Upload 将文件写入对象存储、创建 uploaded 状态的文档记录并派发处理任务。
// 不限制媒体类型：没有匹配解析器的文档会在流水线里转入 failed，而不是在上传时被拒。
func (s *documentService) Upload(ctx context.Context, userID uint, collectionID, fileName, mediaType string, size int64, file io.Reader) (*model.Document, error) {
	fileName = filepath.Base(fileName)
	if collectionID == "" {
		return nil, NewValidationError("collection_id 不能为空")
	}
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, NewValidationError("文件名不能为空")
	}
	if size <= 0 {
		return nil, NewValidationError("文件内容不能为空")
	}
	if mediaType == "" {
		mediaType = fallbackMediaType
	}

	// 1. 上传需要集合的编辑权限
	ok, err := s.permissions.CanAccess(userID, collectionID, model.RoleEditor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermissionDenied
	}

	// 2. 写入对象存储
	documentID := uuid.NewString()
	objectName := fmt.Sprintf("documents/%s/%s/%s", collectionID, documentID, fileName)
	log.Infof("[DocumentService] 步骤1: 上传文件到对象存储, objectName: %s, size: %d", objectName, size)
	if err := s.store.Put(ctx, objectName, file, size, mediaType); err != nil {
		log.Errorf("[DocumentService] 上传文件到对象存储失败: %v", err)
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	// 3. 创建文档记录
	document := &model.Document{
		ID:           documentID,
		CollectionID: collectionID,
		Name:         fileName,
		MediaType:    mediaType,
		SizeBytes:    size,
		Status:       model.DocStatusUploaded,
		StoragePath:  objectName,
		UploadedBy:   userID,
	}
	log.Infof("[DocumentService] 步骤2: 创建文档记录, documentID: %s", documentID)
	if err := s.documentRepo.Create(document); err != nil {
		log.Errorf("[DocumentService] 创建文档记录失败: %v", err)
		// 记录没建起来，顺手清掉刚写入的对象
		if removeErr := s.store.Remove(ctx, objectName); removeErr != nil {
			log.Warnf("[DocumentService] 回滚删除对象失败, objectName: %s, err: %v", objectName, removeErr)
		}
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	// 4. 派发后台处理任务。派发失败不回滚上传，文档停留在 uploaded，
	//    可通过 reprocess 接口重新派发。
	log.Infof("[DocumentService] 步骤3: 派发文档处理任务, documentID: %s", documentID)
	task := tasks.DocumentProcessingTask{DocumentID: documentID, CollectionID: collectionID}
	if err := s.dispatcher.ProduceDocumentTask(ctx, task); err != nil {
		log.Errorf("[DocumentService] 派发文档处理任务失败, documentID: %s, err: %v", documentID, err)
	}

	log.Infof("[DocumentService] 文档上传完成, documentID: %s, name: %s", documentID, fileName)
	return document, nil
}

// List 分页返回集合内的文档。
func (s *documentService) List(userID uint, collectionID string, page, pageSize int) ([]model.Document, int64, error) {
	if collectionID == "" {
		return nil, 0, NewValidationError("collection_id 不能为空")
	}
	ok, err := s.permissions.CanAccess(userID, collectionID, model.RoleViewer)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrPermissionDenied
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > documentPageSizeMax {
		pageSize = documentPageSize
	}
	return s.documentRepo.FindWithPagination(collectionID, (page-1)*pageSize, pageSize)
}

// Get 返回文档详情及其分块数量。
func (s *documentService) Get(userID uint, documentID string) (*model.Document, int64, error) {
	document, err := s.loadAuthorized(userID, documentID, model.RoleViewer)
	if err != nil {
		return nil, 0, err
	}
	chunkCount, err := s.chunkRepo.CountByDocument(documentID)
	if err != nil {
		return nil, 0, fmt.Errorf("统计文档分块失败: %w", err)
	}
	return document, chunkCount, nil
}

// Preview 返回文档已提取的纯文本内容。
func (s *documentService) Preview(userID uint, documentID string) (*DocumentPreview, error) {
	document, err := s.loadAuthorized(userID, documentID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	preview := &DocumentPreview{FileName: document.Name, Status: document.Status}
	if document.ExtractedText != nil {
		preview.Content = *document.ExtractedText
	}
	return preview, nil
}

// Delete 级联删除文档：分块行、向量索引、存储对象，最后删除文档记录。
// 每一步都幂等，任何一步失败都可以安全地整体重试。
func (s *documentService) Delete(ctx context.Context, userID uint, documentID string) error {
	document, err := s.loadAuthorized(userID, documentID, model.RoleEditor)
	if err != nil {
		return err
	}

	log.Infof("[DocumentService] 步骤1: 删除文档分块, documentID: %s", documentID)
	if err := s.chunkRepo.DeleteByDocument(documentID); err != nil {
		return fmt.Errorf("删除文档分块失败: %w", err)
	}

	log.Infof("[DocumentService] 步骤2: 删除向量索引, documentID: %s", documentID)
	if err := s.vectorIndex.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("删除文档向量索引失败: %w", err)
	}

	log.Infof("[DocumentService] 步骤3: 删除存储对象, objectName: %s", document.StoragePath)
	if err := s.store.Remove(ctx, document.StoragePath); err != nil {
		return fmt.Errorf("删除存储对象失败: %w", err)
	}

	log.Infof("[DocumentService] 步骤4: 删除文档记录, documentID: %s", documentID)
	if err := s.documentRepo.Delete(documentID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}

	log.Infof("[DocumentService] 文档删除完成, documentID: %s", documentID)
	return nil
}

// Reprocess 重新派发处理任务，行为与首次处理一致。
func (s *documentService) Reprocess(ctx context.Context, userID uint, documentID string) error {
	document, err := s.loadAuthorized(userID, documentID, model.RoleEditor)
	if err != nil {
		return err
	}

	task := tasks.DocumentProcessingTask{
		DocumentID:   document.ID,
		CollectionID: document.CollectionID,
		Force:        true,
	}
	if err := s.dispatcher.ProduceDocumentTask(ctx, task); err != nil {
		log.Errorf("[DocumentService] 重新派发处理任务失败, documentID: %s, err: %v", documentID, err)
		return fmt.Errorf("派发处理任务失败: %w", err)
	}
	log.Infof("[DocumentService] 已重新派发处理任务, documentID: %s", documentID)
	return nil
}

// DownloadURL 生成文档的临时下载链接。
func (s *documentService) DownloadURL(ctx context.Context, userID uint, documentID string) (*DownloadInfo, error) {
	document, err := s.loadAuthorized(userID, documentID, model.RoleViewer)
	if err != nil {
		return nil, err
	}

	presignedURL, err := s.store.PresignedGetURL(ctx, document.StoragePath, downloadURLExpiry)
	if err != nil {
		log.Errorf("[DocumentService] 生成下载链接失败, documentID: %s, err: %v", documentID, err)
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}

	return &DownloadInfo{
		FileName:    document.Name,
		DownloadURL: presignedURL,
		FileSize:    document.SizeBytes,
	}, nil
}

// loadAuthorized 加载文档并做集合级权限检查。
// 连只读权限都没有的用户按记录不存在处理，避免泄露文档的存在性；
// 有只读权限但角色不足时返回权限错误。
func (s *documentService) loadAuthorized(userID uint, documentID string, minRole model.CollectionRole) (*model.Document, error) {
	document, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}

	ok, err := s.permissions.CanAccess(userID, document.CollectionID, minRole)
	if err != nil {
		return nil, err
	}
	if ok {
		return document, nil
	}

	viewable, err := s.permissions.CanAccess(userID, document.CollectionID, model.RoleViewer)
	if err != nil {
		return nil, err
	}
	if !viewable {
		return nil, gorm.ErrRecordNotFound
	}
	return nil, ErrPermissionDenied
}
