// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/repository"
	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/log"
	"zhiwen-go/pkg/token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 优先从 Authorization 请求头提取，SSE 与 WebSocket 这类
// 无法自定义请求头的场景允许通过 ?token= 查询参数传递。
// 验证通过后把完整的 User 对象与 claims 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, blacklist repository.TokenBlacklist, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "请求未包含授权凭证",
			})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "无效或已过期的 token",
			})
			return
		}

		// 已登出的 token 在自然过期前都在黑名单里。
		// 黑名单不可用时拒绝请求，宁可误杀不可放行。
		revoked, err := blacklist.Contains(c.Request.Context(), tokenString)
		if err != nil {
			log.Errorf("检查 token 黑名单失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "无法验证 token 状态",
			})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "token 已失效",
			})
			return
		}

		// 使用 claims 中的用户名从数据库获取完整的用户信息
		user, err := userService.GetProfile(claims.Username)
		if err != nil {
			// 如果根据 token 中的用户信息无法找到用户，说明该用户可能已被删除
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "用户不存在",
			})
			return
		}

		// 将完整的 User 对象存储在 context 中，供后续处理函数使用
		c.Set("user", user)
		c.Set("claims", claims)

		c.Next()
	}
}

// extractToken 依次尝试 Authorization 头与 token 查询参数。
func extractToken(c *gin.Context) (string, bool) {
	const bearerPrefix = "Bearer "

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return "", false
		}
		return strings.TrimPrefix(authHeader, bearerPrefix), true
	}

	if queryToken := c.Query("token"); queryToken != "" {
		return queryToken, true
	}
	return "", false
}
