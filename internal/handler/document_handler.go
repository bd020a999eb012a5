package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

// DocumentHandler 负责处理文档上传与管理的 API 请求。
// 上传只做接收与派发，解析和向量化由后台流水线异步完成。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理文档上传请求（multipart 表单：file + collection_id）。
// 返回 202，文档状态此时为 uploaded，处理进度通过文档详情轮询。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	collectionID := c.PostForm("collection_id")
	if collectionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少必要的参数：collection_id",
		})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "未能获取上传的文件",
		})
		return
	}
	defer file.Close()

	mediaType := header.Header.Get("Content-Type")
	document, err := h.documentService.Upload(c.Request.Context(), user.ID, collectionID, header.Filename, mediaType, header.Size, file)
	if err != nil {
		log.Warnf("UploadDocument: Failed for user %d in collection %s, error: %v", user.ID, collectionID, err)
		respondError(c, err, "文档上传失败")
		return
	}

	log.Infof("User '%s' uploaded document '%s' (%s) to collection %s", user.Username, document.Name, document.ID, collectionID)
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文档已接收，正在后台处理",
		"data":    document,
	})
}

// List 分页返回指定集合下的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	collectionID := c.Query("collection_id")
	if collectionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少必要的参数：collection_id",
		})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	documents, total, err := h.documentService.List(user.ID, collectionID, page, pageSize)
	if err != nil {
		respondError(c, err, "获取文档列表失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"items":    documents,
			"total":    total,
			"page":     page,
			"pageSize": pageSize,
		},
	})
}

// Get 返回文档详情及其分块数量。
func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	document, chunkCount, err := h.documentService.Get(user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取文档失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"document":   document,
			"chunkCount": chunkCount,
		},
	})
}

// Preview 返回文档已提取的纯文本内容。
func (h *DocumentHandler) Preview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	preview, err := h.documentService.Preview(user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取文档预览失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": preview, "message": "success"})
}

// Delete 删除文档及其分块、向量与存储对象。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	documentID := c.Param("id")
	if err := h.documentService.Delete(c.Request.Context(), user.ID, documentID); err != nil {
		log.Warnf("DeleteDocument: Failed for document %s, error: %v", documentID, err)
		respondError(c, err, "删除文档失败")
		return
	}

	log.Infof("User '%s' deleted document %s", user.Username, documentID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Document deleted successfully",
	})
}

// Reprocess 强制重新处理文档，已有分块会被整体替换。
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	documentID := c.Param("id")
	if err := h.documentService.Reprocess(c.Request.Context(), user.ID, documentID); err != nil {
		log.Warnf("ReprocessDocument: Failed for document %s, error: %v", documentID, err)
		respondError(c, err, "重新处理文档失败")
		return
	}

	log.Infof("User '%s' requested reprocess of document %s", user.Username, documentID)
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文档已重新进入处理队列",
	})
}

// Download 返回文档原始文件的临时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	info, err := h.documentService.DownloadURL(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取下载链接失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": info, "message": "success"})
}
