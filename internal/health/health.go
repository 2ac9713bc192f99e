package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempinbox/backend/internal/storage"
)

// Checker 存活与就绪探针。
//
// liveness 只看进程本身，readiness 额外检查存储后端：
// 数据库挂掉的实例继续活着，但从负载均衡摘除。
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger
}

// Pinger Redis 等可选依赖的连通性检查。
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewChecker 创建健康检查器。pinger 可为 nil。
func NewChecker(store storage.Store, pinger Pinger, log *zap.Logger) *Checker {
	handler := healthcheck.NewHandler()

	handler.AddReadinessCheck("storage", func() error {
		return store.Health()
	})
	if pinger != nil {
		handler.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return pinger.Ping(ctx)
		})
	}

	return &Checker{handler: handler, log: log}
}

// LiveHandler 存活探针。
func (c *Checker) LiveHandler() gin.HandlerFunc {
	return gin.WrapF(c.handler.LiveEndpoint)
}

// ReadyHandler 就绪探针。
func (c *Checker) ReadyHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		recorder := &statusRecorder{ResponseWriter: ctx.Writer}
		c.handler.ReadyEndpoint(recorder, ctx.Request)
		if recorder.status >= http.StatusInternalServerError {
			c.log.Warn("readiness check failed")
		}
	}
}

type statusRecorder struct {
	gin.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
