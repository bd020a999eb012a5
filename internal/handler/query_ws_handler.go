package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// wsQueryMessage 是客户端通过 WebSocket 发送的消息。
// type 为 stop 时取消当前生成，其余情况按新问题处理。
type wsQueryMessage struct {
	Type         string   `json:"type"`
	Question     string   `json:"question"`
	CollectionID string   `json:"collection_id"`
	DocumentIDs  []string `json:"document_ids"`
	Persist      bool     `json:"persist"`
}

// QueryWSHandler 通过 WebSocket 提供流式问答。
// 同一连接上可以连续提问，新问题会取消上一个未完成的生成。
type QueryWSHandler struct {
	queryService service.QueryService
	permissions  service.PermissionService
}

// NewQueryWSHandler 创建一个新的 QueryWSHandler 实例。
func NewQueryWSHandler(queryService service.QueryService, permissions service.PermissionService) *QueryWSHandler {
	return &QueryWSHandler{
		queryService: queryService,
		permissions:  permissions,
	}
}

// Handle 处理一个传入的 WebSocket 连接。
// 事件以 JSON 文本帧下发，格式与 SSE 流的事件一致。
func (h *QueryWSHandler) Handle(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.Username)

	var (
		writeMu   sync.Mutex
		runMu     sync.Mutex
		cancelRun context.CancelFunc
		wg        sync.WaitGroup
	)

	// gorilla/websocket 只允许一个并发写者，读循环与事件泵都经过这里。
	writeJSON := func(v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			log.Errorf("序列化 WebSocket 消息失败: %v", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
		}
	}
	stopRun := func() {
		runMu.Lock()
		if cancelRun != nil {
			cancelRun()
			cancelRun = nil
		}
		runMu.Unlock()
	}
	defer func() {
		stopRun()
		wg.Wait()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg wsQueryMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "无效的消息格式"})
			continue
		}

		if msg.Type == "stop" {
			log.Info("收到停止指令，正在中断流式响应...")
			stopRun()
			writeJSON(gin.H{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
			})
			continue
		}

		if msg.Question == "" {
			writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "问题不能为空"})
			continue
		}

		scope, ok := h.resolveScope(user.ID, msg, writeJSON)
		if !ok {
			continue
		}

		// 新问题取消上一个未完成的生成。
		stopRun()

		ctx, cancel := context.WithCancel(c.Request.Context())
		runMu.Lock()
		cancelRun = cancel
		runMu.Unlock()

		events, err := h.queryService.AnswerStream(ctx, service.QueryRequest{
			UserID:   user.ID,
			Question: msg.Question,
			Scope:    scope,
			Persist:  msg.Persist,
		})
		if err != nil {
			cancel()
			log.Errorf("启动流式问答失败: %v", err)
			if service.IsValidation(err) {
				writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: err.Error()})
			} else {
				writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "AI服务暂时不可用，请稍后重试"})
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			for event := range events {
				writeJSON(event)
			}
		}()
	}
}

// resolveScope 把 WebSocket 消息里的过滤参数收敛到用户可访问的范围。
// 无权限的集合按资源不存在处理，错误通过 error 事件下发。
func (h *QueryWSHandler) resolveScope(userID uint, msg wsQueryMessage, writeJSON func(interface{})) (model.VectorFilter, bool) {
	scope := model.VectorFilter{DocumentIDs: msg.DocumentIDs}

	if msg.CollectionID != "" {
		allowed, err := h.permissions.CanAccess(userID, msg.CollectionID, model.RoleViewer)
		if err != nil {
			log.Errorf("[QueryWSHandler] 权限检查失败, collectionID: %s, error: %v", msg.CollectionID, err)
			writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "服务器内部错误"})
			return scope, false
		}
		if !allowed {
			writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "资源不存在"})
			return scope, false
		}
		scope.CollectionID = msg.CollectionID
		return scope, true
	}

	accessible, err := h.permissions.AccessibleCollectionIDs(userID)
	if err != nil {
		log.Errorf("[QueryWSHandler] 获取可访问集合失败, userID: %d, error: %v", userID, err)
		writeJSON(service.QueryEvent{Type: service.QueryEventError, Message: "服务器内部错误"})
		return scope, false
	}
	scope.CollectionIDs = accessible
	return scope, true
}
