package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
)

// resolveScope 把请求里的过滤参数收敛到用户可访问的检索范围。
// 指定了 collectionID 时要求至少 viewer 权限，无权限按资源不存在处理，
// 不向调用方暴露集合是否存在；未指定时范围是用户可访问的全部集合。
// 返回 false 表示已写入错误响应，调用方直接返回即可。
func resolveScope(c *gin.Context, permissions service.PermissionService, userID uint, collectionID string, documentIDs []string) (model.VectorFilter, bool) {
	scope := model.VectorFilter{DocumentIDs: documentIDs}

	if collectionID != "" {
		allowed, err := permissions.CanAccess(userID, collectionID, model.RoleViewer)
		if err != nil {
			log.Errorf("[Handler] 权限检查失败, collectionID: %s, error: %v", collectionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "服务器内部错误",
			})
			return scope, false
		}
		if !allowed {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "资源不存在",
			})
			return scope, false
		}
		scope.CollectionID = collectionID
		return scope, true
	}

	accessible, err := permissions.AccessibleCollectionIDs(userID)
	if err != nil {
		log.Errorf("[Handler] 获取可访问集合失败, userID: %d, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "服务器内部错误",
		})
		return scope, false
	}
	// 空切片不等于不过滤：没有任何可访问集合时检索必须一无所获。
	scope.CollectionIDs = accessible
	return scope, true
}
