// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"zhiwen-go/internal/model"
	"zhiwen-go/internal/service"
)

// respondError 将 service 层的错误统一映射为 HTTP 响应。
// 校验错误返回 400，凭证错误返回 401，越权返回 403，
// 记录不存在返回 404，其余一律按 500 处理并使用兜底文案。
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": service.ErrInvalidCredentials.Error(),
		})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": service.ErrPermissionDenied.Error(),
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "资源不存在",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": fallback,
		})
	}
}

// currentUser 取回 AuthMiddleware 注入的用户对象。
// 该函数只在挂了认证中间件的路由里调用，取不到说明路由挂错了。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "无法获取用户信息",
		})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "用户数据类型错误",
		})
		return nil, false
	}
	return user, true
}
