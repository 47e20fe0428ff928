package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay_bot/internal/app"
	"relay_bot/internal/config"
	"relay_bot/internal/logger"

	_ "go.uber.org/automaxprocs"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 初始化logger
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.L().Info("Relay bot started")
	runErr := application.Run(ctx)
	if runErr != nil {
		logger.L().Errorf("Relay bot stopped with error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Shutdown error: %v", err)
	}

	logger.L().Info("Relay bot stopped")
	if runErr != nil {
		os.Exit(1)
	}
}
