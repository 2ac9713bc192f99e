package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/auth"
	"tempinbox/backend/internal/domain"
)

// JWTAuth JWT 认证中间件。
//
// 令牌校验走 auth.Service，包含签名、过期与登出黑名单三重检查。
type JWTAuth struct {
	auth *auth.Service
	log  *zap.Logger
}

// NewJWTAuth 创建 JWT 认证中间件。
func NewJWTAuth(authService *auth.Service, log *zap.Logger) *JWTAuth {
	return &JWTAuth{auth: authService, log: log}
}

// RequireAuth 要求有效的访问令牌。
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := ja.auth.Validate(token)
		if err != nil {
			ja.log.Debug("token rejected",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// OptionalAuth 尽力解析令牌，无令牌或令牌无效时按匿名继续。
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token != "" {
			if claims, err := ja.auth.Validate(token); err == nil {
				c.Set("userID", claims.UserID)
				c.Set("email", claims.Email)
				c.Set("role", claims.Role)
			}
		}
		c.Next()
	}
}

// RequireAdmin 要求管理员角色，必须排在 RequireAuth 之后。
func (ja *JWTAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if role != string(domain.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractToken 从 Authorization 头或 cookie 提取令牌。
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if token, err := c.Cookie("access_token"); err == nil {
		return token
	}
	return ""
}
