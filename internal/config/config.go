package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 队列存储后端
const (
	QueueBackendMongo = "mongo"
	QueueBackendRedis = "redis"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string  // Telegram Bot API Token
	BotOwnerIDs   []int64 // Bot管理员ID列表
	MongoURI      string  // MongoDB连接URI
	MongoDBName   string  // MongoDB数据库名称
	QueueBackend  string  // 发布队列存储：mongo / redis
	RedisURL      string  // QUEUE_BACKEND=redis 时必填
	HTTPAddr      string  // 运维 HTTP 地址（/healthz /status /metrics），为空则不启动
	WorkerPool    WorkerPoolConfig
	AI            AIConfig
	Relay         RelayConfig
}

// WorkerPoolConfig 入站消息工作池
type WorkerPoolConfig struct {
	Workers   int
	QueueSize int
}

// AIConfig OpenAI 兼容接口配置
type AIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string // 数据库中未设置模型时使用
	VisionModel  string // 图片描述使用的模型
	Timeout      time.Duration
	MaxRetries   int
}

// RelayConfig 转发节奏与投递配置
type RelayConfig struct {
	Spacing           time.Duration // 相邻两条发布之间的最小间隔
	InitialDelay      time.Duration // 入队到最早发布的延迟
	SchedulerInterval time.Duration // 调度器轮询周期
	DeliveryTimeout   time.Duration // 单条投递超时
	DeliveryRate      float64       // 每秒最多投递条数
	AttributionTag    string        // AI 改写后追加的署名
	TargetLanguage    string        // AI 改写的目标语言
}

// Load 从环境变量加载配置（存在 .env 时先加载）
func Load() (*Config, error) {
	_ = godotenv.Load()

	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "relay_bot"
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		QueueBackend:  strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendMongo)),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9090"),
	}

	switch cfg.QueueBackend {
	case QueueBackendMongo:
	case QueueBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when QUEUE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	var err error
	if cfg.WorkerPool.Workers, err = positiveInt("WORKER_POOL_SIZE", 8); err != nil {
		return nil, err
	}
	if cfg.WorkerPool.QueueSize, err = positiveInt("WORKER_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}

	aiCfg, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	cfg.AI = aiCfg

	relayCfg, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}
	cfg.Relay = relayCfg

	return cfg, nil
}

func loadAIConfig() (AIConfig, error) {
	cfg := AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:      strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		DefaultModel: getEnv("AI_DEFAULT_MODEL", "gpt-3.5-turbo"),
		VisionModel:  getEnv("AI_VISION_MODEL", "gpt-4o-mini"),
	}

	seconds, err := positiveInt("AI_TIMEOUT_SECONDS", 30)
	if err != nil {
		return AIConfig{}, err
	}
	cfg.Timeout = time.Duration(seconds) * time.Second

	if retriesStr := strings.TrimSpace(os.Getenv("AI_MAX_RETRIES")); retriesStr != "" {
		retries, err := strconv.Atoi(retriesStr)
		if err != nil || retries < 0 {
			return AIConfig{}, fmt.Errorf("invalid AI_MAX_RETRIES: %s", retriesStr)
		}
		cfg.MaxRetries = retries
	} else {
		cfg.MaxRetries = 2
	}

	return cfg, nil
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		AttributionTag: getEnv("RELAY_ATTRIBUTION_TAG", "@abclegacynews"),
		TargetLanguage: getEnv("RELAY_TARGET_LANGUAGE", "English"),
	}

	spacing, err := nonNegativeInt("RELAY_SPACING_MINUTES", 30)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.Spacing = time.Duration(spacing) * time.Minute

	delay, err := nonNegativeInt("RELAY_INITIAL_DELAY_MINUTES", 5)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.InitialDelay = time.Duration(delay) * time.Minute

	interval, err := positiveInt("SCHEDULER_INTERVAL_SECONDS", 60)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.SchedulerInterval = time.Duration(interval) * time.Second

	timeout, err := positiveInt("DELIVERY_TIMEOUT_SECONDS", 30)
	if err != nil {
		return RelayConfig{}, err
	}
	cfg.DeliveryTimeout = time.Duration(timeout) * time.Second

	cfg.DeliveryRate = 1
	if rateStr := strings.TrimSpace(os.Getenv("DELIVERY_RATE_PER_SECOND")); rateStr != "" {
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || rate <= 0 {
			return RelayConfig{}, fmt.Errorf("invalid DELIVERY_RATE_PER_SECOND: %s", rateStr)
		}
		cfg.DeliveryRate = rate
	}

	return cfg, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return value, nil
}

func nonNegativeInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
