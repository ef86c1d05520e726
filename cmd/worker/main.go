package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"cutout/internal/app"
	"cutout/internal/config"
	"cutout/internal/pkg/logging"
	"cutout/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Init(cfg.LogLevel)

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("init app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	server := asynq.NewServer(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), asynq.Config{
		Concurrency: cfg.ProcessWorkers,
	})
	mux := a.Processor().Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	slog.Info("worker started", "concurrency", cfg.ProcessWorkers, "redis", cfg.RedisAddr)
	if err := server.Run(mux); err != nil {
		slog.Error("worker stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
