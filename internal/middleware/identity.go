package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tempinbox/backend/internal/domain"
)

const (
	// sessionCookieName 匿名会话 cookie 名
	sessionCookieName = "tempinbox_session"
	// sessionCookieMaxAge 会话 cookie 有效期（秒）
	sessionCookieMaxAge = 30 * 24 * 60 * 60

	// ContextIdentity 请求身份在 gin 上下文中的键
	ContextIdentity = "identity"
)

// ResolveIdentity 为每个请求组装身份三元组。
//
// 优先级 userID > IP > sessionID：登录用户以 userID 记账，
// 匿名用户限流按 IP 算、邮箱归属按 session 算。首次来访的
// 匿名请求现场发一个会话 cookie。
func ResolveIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := domain.Identity{
			IPAddress: c.ClientIP(),
		}

		if userID, ok := c.Get("userID"); ok {
			if id, ok := userID.(string); ok && id != "" {
				identity.UserID = &id
			}
		}

		sessionID, err := c.Cookie(sessionCookieName)
		if err != nil || sessionID == "" {
			sessionID = uuid.NewString()
			c.SetCookie(sessionCookieName, sessionID, sessionCookieMaxAge, "/", "", false, true)
		}
		identity.SessionID = sessionID

		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// IdentityFrom 从 gin 上下文取出请求身份。
func IdentityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(ContextIdentity); ok {
		if identity, ok := v.(domain.Identity); ok {
			return identity
		}
	}
	return domain.Identity{IPAddress: c.ClientIP()}
}
