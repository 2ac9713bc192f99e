package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务器监听配置
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 邮箱服务配置
type MailboxConfig struct {
	DefaultDomains  []string      // 默认域名池，随机邮箱从中选取
	CleanupInterval time.Duration // 清理任务运行间隔，默认 1h
	CacheTTL        time.Duration // 入站地址缓存 TTL，默认 30s
}

// WebhookConfig 入站 Webhook 配置
type WebhookConfig struct {
	Secret       string  // 共享密钥，投递方随请求头携带
	MaxBodyBytes int64   // 请求体上限，默认 25MiB
	RateLimit    float64 // 每秒请求数上限，默认 50
	RateBurst    int     // 突发容量，默认 100
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // 开发模式输出彩色控制台日志
	File        string // 日志文件路径，留空只输出到 stdout
}

// DatabaseConfig 数据库连接配置，Type 留空使用内存存储
type DatabaseConfig struct {
	Type            string // "mysql" 或 "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig Redis 配置，Address 留空禁用缓存与黑名单
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// BlobConfig 附件对象存储配置
type BlobConfig struct {
	// Backend "filesystem" 或 "s3"，留空禁用附件存储
	Backend string

	FilesystemRoot    string // filesystem 后端的根目录
	FilesystemBaseURL string // 附件 URL 前缀

	S3Bucket          string
	S3Region          string
	S3Prefix          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// CloudflareConfig 自有域名的 DNS 编排配置，APIToken 留空禁用该功能
type CloudflareConfig struct {
	APIToken   string
	AccountID  string
	WorkerName string // catch-all 规则转投的 Worker 名
}

// PaymentConfig 支付网关配置，密钥留空的网关不启用
type PaymentConfig struct {
	StripeSecretKey     string
	StripePrices        map[string]string // 套餐名 -> Price ID
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalPrices        map[string]string // 套餐名 -> 金额
	PayPalSandbox       bool
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
}

// Config 系统配置根结构体
type Config struct {
	Server     ServerConfig
	Mailbox    MailboxConfig
	Webhook    WebhookConfig
	CORS       CORSConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Blob       BlobConfig
	JWT        JWTConfig
	Cloudflare CloudflareConfig
	Payment    PaymentConfig
}

// Load 从环境变量和 .env 文件加载配置。
//
// 优先级：环境变量 > .env 文件 > 默认值。
// 环境变量前缀 TEMPINBOX_，如 TEMPINBOX_SERVER_PORT、TEMPINBOX_JWT_SECRET。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("tempinbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	domains := parseDomains(viper.GetString("mailbox.default_domains"))
	if len(domains) == 0 {
		return nil, fmt.Errorf("mailbox.default_domains must not be empty")
	}

	webhookSecret := viper.GetString("webhook.secret")
	if webhookSecret == "" {
		return nil, fmt.Errorf("webhook.secret is required, set TEMPINBOX_WEBHOOK_SECRET")
	}

	jwtSecret := viper.GetString("jwt.secret")
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("jwt.secret cannot be the default value, set TEMPINBOX_JWT_SECRET")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("jwt.secret must be at least 32 characters long")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			DefaultDomains:  domains,
			CleanupInterval: duration("mailbox.cleanup_interval", time.Hour),
			CacheTTL:        duration("mailbox.cache_ttl", 30*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:       webhookSecret,
			MaxBodyBytes: viper.GetInt64("webhook.max_body_bytes"),
			RateLimit:    viper.GetFloat64("webhook.rate_limit"),
			RateBurst:    viper.GetInt("webhook.rate_burst"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: duration("database.conn_max_lifetime", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Blob: BlobConfig{
			Backend:           viper.GetString("blob.backend"),
			FilesystemRoot:    viper.GetString("blob.filesystem_root"),
			FilesystemBaseURL: viper.GetString("blob.filesystem_base_url"),
			S3Bucket:          viper.GetString("blob.s3_bucket"),
			S3Region:          viper.GetString("blob.s3_region"),
			S3Prefix:          viper.GetString("blob.s3_prefix"),
			S3AccessKeyID:     viper.GetString("blob.s3_access_key_id"),
			S3SecretAccessKey: viper.GetString("blob.s3_secret_access_key"),
			S3PublicBaseURL:   viper.GetString("blob.s3_public_base_url"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  duration("jwt.access_expiry", 15*time.Minute),
			RefreshExpiry: duration("jwt.refresh_expiry", 7*24*time.Hour),
		},
		Cloudflare: CloudflareConfig{
			APIToken:   viper.GetString("cloudflare.api_token"),
			AccountID:  viper.GetString("cloudflare.account_id"),
			WorkerName: viper.GetString("cloudflare.worker_name"),
		},
		Payment: PaymentConfig{
			StripeSecretKey: viper.GetString("payment.stripe_secret_key"),
			StripePrices: map[string]string{
				"standard": viper.GetString("payment.stripe_price_standard"),
				"premium":  viper.GetString("payment.stripe_price_premium"),
			},
			PayPalClientID:     viper.GetString("payment.paypal_client_id"),
			PayPalClientSecret: viper.GetString("payment.paypal_client_secret"),
			PayPalPrices: map[string]string{
				"standard": viper.GetString("payment.paypal_price_standard"),
				"premium":  viper.GetString("payment.paypal_price_premium"),
			},
			PayPalSandbox:      viper.GetBool("payment.paypal_sandbox"),
			CheckoutSuccessURL: viper.GetString("payment.checkout_success_url"),
			CheckoutCancelURL:  viper.GetString("payment.checkout_cancel_url"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.default_domains", "tempinbox.io")
	viper.SetDefault("mailbox.cleanup_interval", "1h")
	viper.SetDefault("mailbox.cache_ttl", "30s")
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("webhook.max_body_bytes", 25*1024*1024)
	viper.SetDefault("webhook.rate_limit", 50.0)
	viper.SetDefault("webhook.rate_burst", 100)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("blob.backend", "")
	viper.SetDefault("blob.filesystem_root", "./data/attachments")
	viper.SetDefault("blob.filesystem_base_url", "/attachments")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "tempinbox")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("payment.paypal_sandbox", true)
	viper.SetDefault("payment.checkout_success_url", "https://tempinbox.io/billing/success")
	viper.SetDefault("payment.checkout_cancel_url", "https://tempinbox.io/billing/cancel")
}

// duration 读取时长配置，解析失败时回落到默认值。
func duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseDomains 解析逗号分隔的域名列表并转小写。
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 解析逗号分隔的字符串列表。
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件，不存在时静默跳过。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
