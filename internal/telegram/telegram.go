package telegram

import (
	"context"
	"fmt"
	"time"

	"relay_bot/internal/config"
	"relay_bot/internal/logger"
	"relay_bot/internal/relay/ingest"
	"relay_bot/internal/relay/models"
	"relay_bot/internal/relay/repository"
	"relay_bot/internal/relay/settings"
	"relay_bot/internal/relay/status"

	"github.com/go-telegram/bot"
	"go.mongodb.org/mongo-driver/mongo"
)

// Config Telegram Bot 配置
type Config struct {
	Token       string  // Bot Token
	OwnerIDs    []int64 // Owner 用户 IDs
	Debug       bool    // 是否开启调试模式
	Workers     int     // 入站消息 worker 数量
	QueueSize   int     // 入站消息队列大小
	IngestLimit time.Duration
}

// Ingester 入站消息处理
type Ingester interface {
	Handle(ctx context.Context, in *models.Inbound) (ingest.Outcome, error)
}

// StatusReporter /status 数据来源
type StatusReporter interface {
	Report(ctx context.Context) (status.Report, error)
}

// Deps Bot 依赖
type Deps struct {
	DB           *mongo.Database // 仅用于 /ping 健康检查，可为空
	SettingsRepo repository.SettingsRepository
	Settings     *settings.Cache
}

// Bot Telegram Bot 服务
// 来源频道消息进入转发流程，Owner 通过命令维护配置
type Bot struct {
	bot          *bot.Bot
	db           *mongo.Database
	ownerIDs     map[int64]struct{}
	settingsRepo repository.SettingsRepository
	settings     *settings.Cache
	ingester     Ingester
	reporter     StatusReporter
	workerPool   *WorkerPool
	ingestLimit  time.Duration
	startTime    time.Time
}

// New 创建 Telegram Bot 实例
func New(cfg Config, deps Deps) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}
	if deps.SettingsRepo == nil || deps.Settings == nil {
		return nil, fmt.Errorf("settings repository and cache are required")
	}

	owners := make(map[int64]struct{}, len(cfg.OwnerIDs))
	for _, id := range cfg.OwnerIDs {
		owners[id] = struct{}{}
	}

	ingestLimit := cfg.IngestLimit
	if ingestLimit <= 0 {
		ingestLimit = 2 * time.Minute
	}

	telegramBot := &Bot{
		db:           deps.DB,
		ownerIDs:     owners,
		settingsRepo: deps.SettingsRepo,
		settings:     deps.Settings,
		ingestLimit:  ingestLimit,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.handleUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	telegramBot.workerPool = NewWorkerPool(workers, queueSize)

	telegramBot.registerHandlers()

	logger.L().Infof("Telegram bot initialized: owners=%d", len(owners))
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config, deps Deps) (*Bot, error) {
	telegramCfg := Config{
		Token:       cfg.TelegramToken,
		OwnerIDs:    cfg.BotOwnerIDs,
		Workers:     cfg.WorkerPool.Workers,
		QueueSize:   cfg.WorkerPool.QueueSize,
		IngestLimit: cfg.AI.Timeout*2 + cfg.Relay.DeliveryTimeout,
	}
	return New(telegramCfg, deps)
}

// API 底层 go-telegram/bot 实例（投递与文件下载使用）
func (b *Bot) API() *bot.Bot {
	return b.bot
}

// UseRelay 绑定转发流程与状态来源，需在 Start 之前调用
func (b *Bot) UseRelay(ingester Ingester, reporter StatusReporter) {
	b.ingester = ingester
	b.reporter = reporter
}

// Start 启动 Bot（阻塞直到 ctx 取消）
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")
	b.startTime = time.Now()
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Stop 停止 Bot：等待已提交的入站任务处理完
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	done := make(chan struct{})
	go func() {
		b.workerPool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (b *Bot) isOwner(userID int64) bool {
	_, ok := b.ownerIDs[userID]
	return ok
}
