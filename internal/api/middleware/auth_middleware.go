package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumatch/internal/auth"
)

const userUUIDKey = "userUUID"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将调用方的公开 UUID 注入上下文。
// 只接受 token_type 为 access 的令牌。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil || claims.TokenType != "access" {
			abortUnauthorized(c)
			return
		}

		c.Set(userUUIDKey, claims.UserUUID)
		c.Next()
	}
}

// UserUUIDFromContext 返回上下文中调用方的公开 UUID。
func UserUUIDFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(userUUIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
