package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 投递方携带共享密钥的请求头，兼容两种写法
const (
	webhookSecretHeader = "X-Webhook-Secret"
	webhookAPIKeyHeader = "X-Api-Key"
)

// WebhookGuard 入站 Webhook 的准入：共享密钥 + 全局限速。
//
// 密钥比较用常数时间，避免旁路计时探测。限速是进程级单桶，
// 针对投递方整体而不是单个 IP。
type WebhookGuard struct {
	secret  []byte
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewWebhookGuard 创建 Webhook 守卫。
func NewWebhookGuard(secret string, rps float64, burst int, log *zap.Logger) *WebhookGuard {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &WebhookGuard{
		secret:  []byte(secret),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

// Handler 返回守卫中间件。
func (g *WebhookGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := []byte(c.GetHeader(webhookSecretHeader))
		if len(provided) == 0 {
			provided = []byte(c.GetHeader(webhookAPIKeyHeader))
		}
		if len(g.secret) == 0 ||
			subtle.ConstantTimeCompare(provided, g.secret) != 1 {
			g.log.Warn("webhook secret mismatch", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"reason":  "UNAUTHORIZED",
			})
			return
		}

		if !g.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"reason":  "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
