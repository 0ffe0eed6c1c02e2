package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB  bool
	PostgresDSN string

	// 会话配置
	JWTSecret         string
	SessionCookieName string
	SessionTTL        time.Duration

	// 超级管理员白名单（启动时解析一次）
	SuperAdminEmails map[string]struct{}

	// Stripe配置
	StripeSecretKey       string
	StripeWebhookSecret   string
	StripeConnectClientID string
	StripeCurrency        string

	// PayPal配置
	PaypalClientID     string
	PaypalClientSecret string
	PaypalAPIBase      string

	// Dodo配置
	DodoAPIKey  string
	DodoAPIBase string

	// 平台抽成（万分比）
	CommissionBps int64

	// 打款队列
	PayoutWorkers   int
	PayoutQueueSize int

	BaseURL        string
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// godotenv.Load never overrides variables that are already set
	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}

	cfg := &Config{
		Environment:       getEnvWithDefault("ENVIRONMENT", "development"),
		Port:              getEnvWithDefault("PORT", "3000"),
		UseLocalDB:        getEnvBool("USE_LOCAL_DB", false),
		JWTSecret:         getEnvWithDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		SessionCookieName: getEnvWithDefault("SESSION_COOKIE_NAME", "rr_session"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		Debug:             getEnvBool("DEBUG", false),
	}

	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	cfg.SuperAdminEmails = ParseEmailAllowList(os.Getenv("SUPER_ADMIN_EMAILS"))

	cfg.StripeSecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	cfg.StripeWebhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	cfg.StripeConnectClientID = strings.TrimSpace(os.Getenv("STRIPE_CONNECT_CLIENT_ID"))
	cfg.StripeCurrency = strings.ToLower(getEnvWithDefault("STRIPE_CURRENCY", "usd"))

	cfg.PaypalClientID = strings.TrimSpace(os.Getenv("PAYPAL_CLIENT_ID"))
	cfg.PaypalClientSecret = strings.TrimSpace(os.Getenv("PAYPAL_CLIENT_SECRET"))
	cfg.PaypalAPIBase = getEnvWithDefault("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com")

	cfg.DodoAPIKey = strings.TrimSpace(os.Getenv("DODO_API_KEY"))
	cfg.DodoAPIBase = getEnvWithDefault("DODO_API_BASE", "https://test.dodopayments.com")

	cfg.CommissionBps = int64(getEnvInt("PLATFORM_COMMISSION_BPS", 1000))
	cfg.PayoutWorkers = getEnvInt("PAYOUT_WORKERS", 2)
	cfg.PayoutQueueSize = getEnvInt("PAYOUT_QUEUE_SIZE", 64)

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(getEnvWithDefault("BASE_URL", "http://localhost:3000")), "/")

	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		cfg.AllowedOrigins = []string{"*"}
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.Environment == "production" {
		cfg.Debug = false
		if cfg.PostgresDSN == "" {
			log.Warn().Msg("production environment without POSTGRES_DSN; falling back to the in-memory store")
			cfg.UseLocalDB = true
		}
	}

	return cfg
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == "your-secret-key-change-in-production" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		log.Warn().Msg("using default JWT secret (not recommended for production)")
	}

	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 USE_LOCAL_DB=true")
	}

	if c.CommissionBps < 0 || c.CommissionBps > 10000 {
		return fmt.Errorf("PLATFORM_COMMISSION_BPS must be between 0 and 10000, got %d", c.CommissionBps)
	}

	if c.IsProduction() && c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return nil
}

// IsSuperAdmin reports whether email is on the allow-list
func (c *Config) IsSuperAdmin(email string) bool {
	_, ok := c.SuperAdminEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ParseEmailAllowList splits a comma-separated list into a lower-cased set
func ParseEmailAllowList(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range strings.Split(raw, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// 辅助函数

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile 加载 .env 文件到环境变量（文件不存在时静默返回）
func loadEnvFile(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(filename); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("failed to load env file")
	}
}
