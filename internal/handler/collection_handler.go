package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

// CollectionHandler 负责处理知识集合及其成员管理的 API 请求。
type CollectionHandler struct {
	collectionService service.CollectionService
}

// NewCollectionHandler 创建一个新的 CollectionHandler 实例。
func NewCollectionHandler(collectionService service.CollectionService) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService}
}

// CreateCollectionRequest 定义了创建集合 API 的请求体结构。
type CreateCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// Create 创建一个新的知识集合，调用者自动成为拥有者。
func (h *CollectionHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateCollection: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：集合名称不能为空",
		})
		return
	}

	collection, err := h.collectionService.Create(user.ID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		log.Warnf("CreateCollection: Failed for user %d, error: %v", user.ID, err)
		respondError(c, err, "创建集合失败")
		return
	}

	log.Infof("User '%s' created collection '%s' (%s)", user.Username, collection.Name, collection.ID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Collection created successfully",
		"data":    collection,
	})
}

// List 分页返回当前用户可见的集合。
func (h *CollectionHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	collections, total, err := h.collectionService.List(user.ID, page, pageSize)
	if err != nil {
		log.Error("ListCollections: Failed to list collections", err)
		respondError(c, err, "获取集合列表失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"items":    collections,
			"total":    total,
			"page":     page,
			"pageSize": pageSize,
		},
	})
}

// Get 返回单个集合的详情。
func (h *CollectionHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	collection, err := h.collectionService.Get(user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取集合失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": collection, "message": "success"})
}

// UpdateCollectionRequest 定义了更新集合 API 的请求体结构。
type UpdateCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// Update 修改集合的基本信息，仅拥有者可执行。
func (h *CollectionHandler) Update(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("UpdateCollection: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：集合名称不能为空",
		})
		return
	}

	collection, err := h.collectionService.Update(user.ID, c.Param("id"), req.Name, req.Description, req.IsPublic)
	if err != nil {
		log.Warnf("UpdateCollection: Failed for collection %s, error: %v", c.Param("id"), err)
		respondError(c, err, "更新集合失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Collection updated successfully",
		"data":    collection,
	})
}

// Delete 删除集合并级联清理其全部文档数据，仅拥有者可执行。
func (h *CollectionHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	collectionID := c.Param("id")
	if err := h.collectionService.Delete(c.Request.Context(), user.ID, collectionID); err != nil {
		log.Warnf("DeleteCollection: Failed for collection %s, error: %v", collectionID, err)
		respondError(c, err, "删除集合失败")
		return
	}

	log.Infof("User '%s' deleted collection %s", user.Username, collectionID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Collection deleted successfully",
	})
}

// AddMemberRequest 定义了添加集合成员 API 的请求体结构。
type AddMemberRequest struct {
	UserID uint   `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AddMember 把用户加入集合，仅拥有者可执行。
func (h *CollectionHandler) AddMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("AddMember: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：userId 和 role 不能为空",
		})
		return
	}

	collectionID := c.Param("id")
	if err := h.collectionService.AddMember(user.ID, collectionID, req.UserID, model.CollectionRole(req.Role)); err != nil {
		log.Warnf("AddMember: Failed for collection %s, error: %v", collectionID, err)
		respondError(c, err, "添加成员失败")
		return
	}

	log.Infof("User %d added to collection %s as %s", req.UserID, collectionID, req.Role)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Member added successfully",
	})
}

// UpdateMemberRoleRequest 定义了调整成员角色 API 的请求体结构。
type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateMemberRole 调整成员在集合中的角色，仅拥有者可执行。
func (h *CollectionHandler) UpdateMemberRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的用户 ID",
		})
		return
	}

	var req UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("UpdateMemberRole: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：role 不能为空",
		})
		return
	}

	collectionID := c.Param("id")
	if err := h.collectionService.UpdateMemberRole(user.ID, collectionID, uint(memberID), model.CollectionRole(req.Role)); err != nil {
		log.Warnf("UpdateMemberRole: Failed for collection %s, error: %v", collectionID, err)
		respondError(c, err, "调整成员角色失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Member role updated successfully",
	})
}

// RemoveMember 把成员移出集合，仅拥有者可执行。
func (h *CollectionHandler) RemoveMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的用户 ID",
		})
		return
	}

	collectionID := c.Param("id")
	if err := h.collectionService.RemoveMember(user.ID, collectionID, uint(memberID)); err != nil {
		log.Warnf("RemoveMember: Failed for collection %s, error: %v", collectionID, err)
		respondError(c, err, "移除成员失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Member removed successfully",
	})
}

// ListMembers 返回集合的成员列表，集合内任意成员可查看。
func (h *CollectionHandler) ListMembers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	members, err := h.collectionService.ListMembers(user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取成员列表失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": members, "message": "success"})
}
