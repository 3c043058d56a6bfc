package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ==================== 配置定义 ====================

// Config 全局配置
// 所有远程调用发生之前必须完成加载与校验，配置缺失直接以 exit 1 终止
type Config struct {
	// --- Shopify 远程店铺 ---
	StoreDomain  string // 如 my-shop.myshopify.com
	APIVersion   string // 如 2024-04
	AdminToken   string // 静态 Admin Token（与 ClientID/Secret 二选一）
	ClientID     string
	ClientSecret string

	// --- 元数据库 ---
	DatabaseURL        string
	DatabaseServiceKey string // 可选，DSN 未携带密码时注入

	// --- 同步参数 ---
	DailyVariantLimit int           // 每日变体创建配额（默认 900）
	BulkBatchSize     int           // 单批 JSONL 资产数（默认 10000）
	SyncPacer         time.Duration // 逐条同步的节流间隔（默认 500ms）
	BulkPollInterval  time.Duration // Bulk Operation 轮询间隔（默认 10s）
	ArtifactDir       string        // JSONL 审计文件目录

	// --- 审计文件归档（可选 S3） ---
	StorageProvider string // "s3" 或空（仅本地磁盘）
	StorageBucket   string
	StorageRegion   string
	StorageKey      string
	StorageSecret   string
	StorageBasePath string

	// --- watch 模式 ---
	WatchCron string // cron 表达式（含秒位）
}

// Load 加载环境变量并校验必填项
// .env 文件存在则自动载入，不存在不算错误
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreDomain:  os.Getenv("SHOPIFY_STORE_DOMAIN"),
		APIVersion:   getEnv("SHOPIFY_API_VERSION", "2024-04"),
		AdminToken:   os.Getenv("SHOPIFY_ADMIN_TOKEN"),
		ClientID:     os.Getenv("SHOPIFY_CLIENT_ID"),
		ClientSecret: os.Getenv("SHOPIFY_CLIENT_SECRET"),

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DatabaseServiceKey: os.Getenv("DATABASE_SERVICE_KEY"),

		DailyVariantLimit: getEnvInt("DAILY_VARIANT_LIMIT", 900),
		BulkBatchSize:     getEnvInt("BULK_BATCH_SIZE", 10000),
		SyncPacer:         time.Duration(getEnvInt("SYNC_PACER_MS", 500)) * time.Millisecond,
		BulkPollInterval:  time.Duration(getEnvInt("BULK_POLL_SECONDS", 10)) * time.Second,
		ArtifactDir:       getEnv("BULK_ARTIFACT_DIR", "./bulk-artifacts"),

		StorageProvider: os.Getenv("STORAGE_PROVIDER"),
		StorageBucket:   os.Getenv("AWS_BUCKET"),
		StorageRegion:   os.Getenv("AWS_REGION"),
		StorageKey:      os.Getenv("AWS_ACCESS_KEY_ID"),
		StorageSecret:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		StorageBasePath: getEnv("STORAGE_BASE_PATH", "bulk-sync"),

		WatchCron: getEnv("WATCH_CRON", "0 0 6 * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 致命配置校验：任何远程调用之前执行
func (c *Config) validate() error {
	if c.StoreDomain == "" {
		return fmt.Errorf("缺少必填环境变量 SHOPIFY_STORE_DOMAIN")
	}
	if c.AdminToken == "" && (c.ClientID == "" || c.ClientSecret == "") {
		return fmt.Errorf("缺少凭证：需要 SHOPIFY_ADMIN_TOKEN 或 SHOPIFY_CLIENT_ID + SHOPIFY_CLIENT_SECRET")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("缺少必填环境变量 DATABASE_URL")
	}
	if c.DailyVariantLimit <= 0 {
		return fmt.Errorf("DAILY_VARIANT_LIMIT 必须为正数")
	}
	if c.BulkBatchSize <= 0 {
		return fmt.Errorf("BULK_BATCH_SIZE 必须为正数")
	}
	return nil
}

// DSN 返回最终数据库连接串
// DATABASE_SERVICE_KEY 设置且 DSN 未携带密码时，以 password 参数注入
func (c *Config) DSN() string {
	if c.DatabaseServiceKey == "" || strings.Contains(c.DatabaseURL, "password=") {
		return c.DatabaseURL
	}
	return c.DatabaseURL + " password=" + c.DatabaseServiceKey
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
