package app

import (
	"context"
	"fmt"
	"time"

	"relay_bot/internal/ai/openai"
	"relay_bot/internal/config"
	"relay_bot/internal/httpapi"
	"relay_bot/internal/logger"
	"relay_bot/internal/mongo"
	"relay_bot/internal/redis"
	"relay_bot/internal/relay/delivery"
	"relay_bot/internal/relay/ingest"
	"relay_bot/internal/relay/queue"
	"relay_bot/internal/relay/repository"
	"relay_bot/internal/relay/scheduler"
	"relay_bot/internal/relay/settings"
	"relay_bot/internal/relay/status"
	"relay_bot/internal/relay/transform"
	"relay_bot/internal/telegram"

	"golang.org/x/sync/errgroup"
)

const (
	initTimeout  = 15 * time.Second
	photoRetries = 2
)

// App 应用服务容器
// 负责所有服务的初始化、运行与关闭
type App struct {
	MongoDB     *mongo.Client
	Redis       *redis.Client // 仅 QUEUE_BACKEND=redis 时存在
	TelegramBot *telegram.Bot
	Scheduler   *scheduler.Scheduler
	HTTPServer  *httpapi.Server // HTTP_ADDR 为空时不启动
}

// New 按依赖顺序初始化各服务，任一失败都会清理已初始化的部分
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	if err := app.build(cfg); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db := a.MongoDB.Database()

	queueRepo, err := a.queueRepository(cfg)
	if err != nil {
		return err
	}
	if err := queueRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure queue indexes failed: %w", err)
	}

	settingsRepo := repository.NewMongoSettingsRepository(db)
	settingsCache := settings.NewCache(settingsRepo, cfg.AI.DefaultModel)
	if err := settingsCache.Reload(ctx); err != nil {
		return fmt.Errorf("load relay settings failed: %w", err)
	}

	tg, err := telegram.InitFromConfig(cfg, telegram.Deps{
		DB:           db,
		SettingsRepo: settingsRepo,
		Settings:     settingsCache,
	})
	if err != nil {
		return fmt.Errorf("init Telegram bot failed: %w", err)
	}
	a.TelegramBot = tg
	logger.L().Info("Telegram bot initialized successfully")

	transformer := a.transformer(cfg, tg)
	postQueue := queue.New(queueRepo, cfg.Relay.Spacing, cfg.Relay.InitialDelay)
	pipeline := ingest.NewPipeline(settingsCache, transformer, postQueue)

	deliverer := delivery.NewAdapter(tg.API(), cfg.Relay.DeliveryRate)
	a.Scheduler = scheduler.New(settingsCache, postQueue, deliverer, cfg.Relay.SchedulerInterval, cfg.Relay.DeliveryTimeout)

	reporter := status.NewReporter(settingsCache, postQueue, a.Scheduler)
	tg.UseRelay(pipeline, reporter)

	if cfg.HTTPAddr != "" {
		checks := map[string]httpapi.Pinger{"mongo": a.MongoDB}
		if a.Redis != nil {
			checks["redis"] = httpapi.PingFunc(func(ctx context.Context) error {
				return a.Redis.Ping(ctx).Err()
			})
		}
		a.HTTPServer = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(reporter, checks))
	}

	logger.L().Infof("Relay initialized: queue=%s spacing=%s initial_delay=%s interval=%s",
		cfg.QueueBackend, cfg.Relay.Spacing, cfg.Relay.InitialDelay, cfg.Relay.SchedulerInterval)
	return nil
}

func (a *App) queueRepository(cfg *config.Config) (repository.QueueRepository, error) {
	if cfg.QueueBackend != config.QueueBackendRedis {
		return repository.NewMongoQueueRepository(a.MongoDB.Database()), nil
	}

	redisClient, err := redis.NewClient(redis.Config{URL: cfg.RedisURL})
	if err != nil {
		return nil, fmt.Errorf("init Redis failed: %w", err)
	}
	a.Redis = redisClient
	logger.L().Info("Redis initialized successfully")
	return repository.NewRedisQueueRepository(redisClient.Client), nil
}

// transformer 未配置 OPENAI_API_KEY 时 AI 开关打开也只会原样转发
func (a *App) transformer(cfg *config.Config, tg *telegram.Bot) *transform.Transformer {
	tag := cfg.Relay.AttributionTag
	if cfg.AI.APIKey == "" {
		logger.L().Warn("OPENAI_API_KEY is not set, AI transform disabled")
		return transform.New(nil, tag)
	}

	client, err := openai.NewClient(cfg.AI,
		openai.WithAttribution(tag),
		openai.WithTargetLanguage(cfg.Relay.TargetLanguage),
	)
	if err != nil {
		logger.L().Warnf("Failed to create OpenAI client, AI transform disabled: %v", err)
		return transform.New(nil, tag)
	}

	photos := telegram.NewPhotoFetcher(tg.API(), cfg.AI.Timeout, photoRetries)
	return transform.New(client, client.Tag(),
		transform.WithCaptioning(client, photos),
		transform.WithTimeout(cfg.AI.Timeout+cfg.AI.Timeout/2),
	)
}

// Run 并行运行 Bot、调度器与运维 HTTP，ctx 取消或任一失败时全部退出
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.TelegramBot.Start(ctx)
	})
	g.Go(func() error {
		return a.Scheduler.Run(ctx)
	})
	if a.HTTPServer != nil {
		g.Go(func() error {
			return a.HTTPServer.Run(ctx)
		})
	}

	return g.Wait()
}

// Close 优雅关闭所有服务
// 先等入站任务处理完，再断开存储
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.TelegramBot != nil {
		if err := a.TelegramBot.Stop(ctx); err != nil {
			keep(fmt.Errorf("stop Telegram bot failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			keep(fmt.Errorf("close Redis failed: %w", err))
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			keep(fmt.Errorf("close MongoDB failed: %w", err))
		}
	}
	return firstErr
}
