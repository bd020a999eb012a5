package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

// SearchHandler 负责处理相似度检索的 API 请求。
// 鉴权在这里完成：检索范围被限定在调用者可访问的集合内，
// 索引层拿到的过滤条件已经是安全的。
type SearchHandler struct {
	searchService service.SearchService
	permissions   service.PermissionService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, permissions service.PermissionService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		permissions:   permissions,
	}
}

// Search 是处理相似度检索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	if query == "" {
		log.Warnf("[SearchHandler] 检索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的查询参数",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	threshold, err := strconv.ParseFloat(c.DefaultQuery("threshold", "0"), 64)
	if err != nil {
		threshold = 0
	}

	scope, ok := resolveScope(c, h.permissions, user.ID, c.Query("collection_id"), splitIDList(c.Query("document_ids")))
	if !ok {
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), query, scope, limit, threshold)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		respondError(c, err, "搜索失败")
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": results, "message": "success"})
}

// splitIDList 解析逗号分隔的 ID 列表参数，忽略空项。
func splitIDList(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
