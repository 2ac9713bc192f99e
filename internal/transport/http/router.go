package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/auth"
	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/health"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
)

// RouterDependencies 路由器依赖项。
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	IngestService  *service.IngestService
	RateLimit      *service.RateLimitService
	Subscriptions  *service.SubscriptionService
	CustomDomains  *service.CustomDomainService
	Billing        *service.BillingService
	Admin          *service.AdminService
	AuthService    *auth.Service
	Health         *health.Checker
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(deps.Metrics.GinMiddleware())
	router.Use(middleware.BodySizeLimit(deps.Config.Webhook.MaxBodyBytes))
	router.Use(newCORS(deps.Config.CORS.AllowedOrigins))

	mailboxHandler := NewMailboxHandler(deps.MailboxService, deps.RateLimit, deps.Subscriptions, deps.Metrics, deps.Logger)
	messageHandler := NewMessageHandler(deps.MailboxService, deps.MessageService, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.IngestService, deps.Metrics, deps.Logger)
	authHandler := NewAuthHandler(deps.AuthService, deps.Logger)
	domainHandler := NewDomainHandler(deps.CustomDomains, deps.Logger)
	billingHandler := NewBillingHandler(deps.Billing, deps.Subscriptions, deps.Logger)
	adminHandler := NewAdminHandler(deps.Admin, deps.Logger)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, deps.Logger)
	webhookGuard := middleware.NewWebhookGuard(
		deps.Config.Webhook.Secret,
		deps.Config.Webhook.RateLimit,
		deps.Config.Webhook.RateBurst,
		deps.Logger,
	)

	// 运维端点
	router.GET("/healthz", deps.Health.LiveHandler())
	router.GET("/readyz", deps.Health.ReadyHandler())
	router.GET("/metrics", deps.Metrics.Handler())

	// 入站 Webhook：密钥 + 限速守卫，身份中间件不参与
	router.POST("/api/webhook/email", webhookGuard.Handler(), webhookHandler.Receive)

	api := router.Group("/api")
	api.Use(jwtAuth.OptionalAuth(), middleware.ResolveIdentity())
	{
		// 邮箱
		api.POST("/mailboxes", mailboxHandler.Create)
		api.GET("/mailboxes", mailboxHandler.List)
		api.POST("/mailboxes/:id/refresh", mailboxHandler.Refresh)
		api.DELETE("/mailboxes/:id", mailboxHandler.Delete)
		api.GET("/ratelimit", mailboxHandler.RateLimitStatus)

		// 收件箱与邮件
		api.GET("/emails/:emailAddress", messageHandler.Inbox)
		api.GET("/emails/:emailAddress/messages/:messageId", messageHandler.Get)
		api.PATCH("/emails/:emailAddress/messages/:messageId/read", messageHandler.MarkRead)
		api.DELETE("/emails/:emailAddress/messages/:messageId", messageHandler.Delete)

		// 套餐目录公开可读
		api.GET("/plans", billingHandler.Plans)
	}

	// 认证
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		authGroup.POST("/password", jwtAuth.RequireAuth(), authHandler.ChangePassword)
	}

	// 登录用户专属
	user := router.Group("/api")
	user.Use(jwtAuth.RequireAuth(), middleware.ResolveIdentity())
	{
		user.GET("/subscription", billingHandler.Subscription)
		user.POST("/billing/checkout", billingHandler.StartCheckout)
		user.POST("/billing/complete", billingHandler.CompleteCheckout)
		user.POST("/billing/downgrade", billingHandler.Downgrade)

		user.POST("/domains", domainHandler.Register)
		user.GET("/domains", domainHandler.List)
		user.POST("/domains/:id/verify", domainHandler.Verify)
		user.DELETE("/domains/:id", domainHandler.Remove)
	}

	// 后台管理
	admin := router.Group("/api/admin")
	admin.Use(jwtAuth.RequireAuth(), jwtAuth.RequireAdmin())
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.GET("/statistics", adminHandler.Statistics)
		admin.PATCH("/users/:id/active", adminHandler.SetUserActive)
		admin.PATCH("/users/:id/plan", adminHandler.ChangeUserPlan)
		admin.POST("/billing/refund", billingHandler.Refund)
	}

	return router
}

// newCORS 构造 CORS 中间件，通配来源时关闭凭证。
func newCORS(origins []string) gin.HandlerFunc {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowCredentials = false
			break
		}
	}
	return gincors.New(cfg)
}
