package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempinbox/backend/internal/auth"
	jwtpkg "tempinbox/backend/internal/auth/jwt"
	"tempinbox/backend/internal/blob"
	blobfs "tempinbox/backend/internal/blob/filesystem"
	blobs3 "tempinbox/backend/internal/blob/s3"
	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/dnsprov/cloudflare"
	"tempinbox/backend/internal/health"
	"tempinbox/backend/internal/logger"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/payment"
	"tempinbox/backend/internal/pool"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
	storageredis "tempinbox/backend/internal/storage/redis"
	storagesql "tempinbox/backend/internal/storage/sql"
	httptransport "tempinbox/backend/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting tempinbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层：配置了数据库用 SQL，否则用内存（开发模式）
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = storagesql.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// Redis：地址留空时禁用，地址缓存与 JWT 黑名单回落到主存储
	var (
		redisClient *storageredis.Client
		addrCache   service.MailboxCache
		blacklist   storage.JWTRepository = store
	)
	if cfg.Redis.Address != "" {
		redisClient, err = storageredis.New(&cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer redisClient.Close()
		addrCache = storageredis.NewAddressCache(redisClient, cfg.Mailbox.CacheTTL)
		blacklist = storageredis.NewBlacklist(redisClient)
	}

	// 附件对象存储
	blobStore := newBlobStore(cfg, log)

	metrics := monitoring.NewMetrics()

	// 服务层
	subscriptions := service.NewSubscriptionService(store, log)
	rateLimit := service.NewRateLimitService(store, log)
	mailboxes := service.NewMailboxService(store, subscriptions, blobStore, addrCache, cfg.Mailbox.DefaultDomains, log)
	messages := service.NewMessageService(store, mailboxes, blobStore, log)
	ingest := service.NewIngestService(store, mailboxes, blobStore, log)

	workers := pool.NewWorkerPool(8, 256, log)
	cleanup := service.NewCleanupService(store, blobStore, rateLimit, workers, log)

	var dns service.DNSProvider
	if cfg.Cloudflare.APIToken != "" {
		dns = cloudflare.NewClient(cfg.Cloudflare.APIToken, cfg.Cloudflare.AccountID, log)
	}
	customDomains := service.NewCustomDomainService(store, subscriptions, dns, cfg.Cloudflare.WorkerName, log)

	var gateways []payment.Gateway
	if cfg.Payment.StripeSecretKey != "" {
		gateways = append(gateways, payment.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.StripePrices, log))
	}
	if cfg.Payment.PayPalClientID != "" {
		gateways = append(gateways, payment.NewPayPalGateway(
			cfg.Payment.PayPalClientID,
			cfg.Payment.PayPalClientSecret,
			cfg.Payment.PayPalPrices,
			cfg.Payment.PayPalSandbox,
			log,
		))
	}
	billing := service.NewBillingService(gateways, subscriptions,
		cfg.Payment.CheckoutSuccessURL, cfg.Payment.CheckoutCancelURL, log)

	adminService := service.NewAdminService(store, subscriptions, log)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	authService := auth.NewService(store, blacklist, jwtManager, log)

	var pinger health.Pinger
	if redisClient != nil {
		pinger = redisClient
	}
	healthChecker := health.NewChecker(store, pinger, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxes,
		MessageService: messages,
		IngestService:  ingest,
		RateLimit:      rateLimit,
		Subscriptions:  subscriptions,
		CustomDomains:  customDomains,
		Billing:        billing,
		Admin:          adminService,
		AuthService:    authService,
		Health:         healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)
	defer workers.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 定期清理：启动先跑一轮，之后按配置间隔执行
	group.Go(func() error {
		interval := cfg.Mailbox.CleanupInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("starting cleanup task", zap.Duration("interval", interval))

		runCleanup(groupCtx, cleanup, metrics)
		for {
			select {
			case <-groupCtx.Done():
				log.Info("cleanup task stopped")
				return nil
			case <-ticker.C:
				runCleanup(groupCtx, cleanup, metrics)
			}
		}
	})

	// 优雅退出
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

func runCleanup(ctx context.Context, cleanup *service.CleanupService, metrics *monitoring.Metrics) {
	start := time.Now()
	stats := cleanup.Run(ctx)
	metrics.CleanupMailboxes.Add(float64(stats.MailboxesDeleted))
	metrics.CleanupDuration.Observe(time.Since(start).Seconds())
}

// newBlobStore 按配置构造附件对象存储，未配置时返回 nil（附件直接丢弃）。
func newBlobStore(cfg *config.Config, log *zap.Logger) blob.Storage {
	switch cfg.Blob.Backend {
	case "filesystem":
		store, err := blobfs.NewStore(cfg.Blob.FilesystemRoot, cfg.Blob.FilesystemBaseURL)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize filesystem blob store: %v", err))
		}
		log.Info("using filesystem blob store", zap.String("root", cfg.Blob.FilesystemRoot))
		return store
	case "s3":
		store, err := blobs3.New(context.Background(), blobs3.Config{
			Bucket:          cfg.Blob.S3Bucket,
			Region:          cfg.Blob.S3Region,
			Prefix:          cfg.Blob.S3Prefix,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretAccessKey,
			PublicBaseURL:   cfg.Blob.S3PublicBaseURL,
		})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize s3 blob store: %v", err))
		}
		log.Info("using s3 blob store", zap.String("bucket", cfg.Blob.S3Bucket))
		return store
	case "":
		log.Warn("blob storage disabled, attachments will be dropped")
		return nil
	default:
		panic(fmt.Sprintf("unknown blob backend: %s", cfg.Blob.Backend))
	}
}
