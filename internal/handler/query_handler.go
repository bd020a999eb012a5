package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

// QueryHandler 负责处理检索增强问答的 API 请求。
// 同步问答走阻塞生成，流式问答以 SSE 推送事件流。
type QueryHandler struct {
	queryService service.QueryService
	permissions  service.PermissionService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService, permissions service.PermissionService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		permissions:  permissions,
	}
}

// AskQueryRequest 定义了同步问答 API 的请求体结构。
// persist 缺省为 true：同步问答默认落历史记录。
type AskQueryRequest struct {
	Question     string   `json:"question" binding:"required"`
	CollectionID string   `json:"collection_id"`
	DocumentIDs  []string `json:"document_ids"`
	Persist      *bool    `json:"persist"`
}

// Ask 处理同步问答请求，阻塞直到回答生成完毕。
func (h *QueryHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req AskQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("AskQuery: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：question 不能为空",
		})
		return
	}

	scope, ok := resolveScope(c, h.permissions, user.ID, req.CollectionID, req.DocumentIDs)
	if !ok {
		return
	}

	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}

	record, err := h.queryService.Answer(c.Request.Context(), service.QueryRequest{
		UserID:   user.ID,
		Question: req.Question,
		Scope:    scope,
		Persist:  persist,
	})
	if err != nil {
		log.Errorf("AskQuery: Failed for user %d, error: %v", user.ID, err)
		respondError(c, err, "问答失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": record, "message": "success"})
}

// Stream 处理流式问答请求，以 SSE 推送 token/citations/done 事件。
// 客户端断开后生成立即停止，部分结果不会落库。
func (h *QueryHandler) Stream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	question := c.Query("question")
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的查询参数：question 不能为空",
		})
		return
	}
	persist, _ := strconv.ParseBool(c.DefaultQuery("persist", "false"))

	scope, ok := resolveScope(c, h.permissions, user.ID, c.Query("collection_id"), splitIDList(c.Query("document_ids")))
	if !ok {
		return
	}

	events, err := h.queryService.AnswerStream(c.Request.Context(), service.QueryRequest{
		UserID:   user.ID,
		Question: question,
		Scope:    scope,
		Persist:  persist,
	})
	if err != nil {
		log.Errorf("StreamQuery: Failed to start stream for user %d, error: %v", user.ID, err)
		respondError(c, err, "问答失败")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	log.Infof("StreamQuery: User '%s' started streaming query", user.Username)
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Errorf("StreamQuery: Failed to marshal event, error: %v", err)
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}
}

// History 分页返回当前用户的问答历史。
func (h *QueryHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	queries, total, err := h.queryService.History(user.ID, page, pageSize)
	if err != nil {
		log.Error("QueryHistory: Failed to list queries", err)
		respondError(c, err, "获取问答历史失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"items":    queries,
			"total":    total,
			"page":     page,
			"pageSize": pageSize,
		},
	})
}

// Get 返回当前用户的某条问答记录。
func (h *QueryHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	record, err := h.queryService.GetByID(user.ID, c.Param("id"))
	if err != nil {
		respondError(c, err, "获取问答记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": record, "message": "success"})
}
