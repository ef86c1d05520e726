package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"cutout/internal/app"
	"cutout/internal/config"
	"cutout/internal/domain/image"
	"cutout/internal/domain/upload"
	"cutout/internal/pkg/logging"
	"cutout/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Init(cfg.LogLevel)
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("api failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// run serves the API until ctx is done. Resources are released before it returns.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	dispatcher, stopDispatch, err := a.Dispatcher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}
	defer stopDispatch()

	imageService := image.NewService(a.Images, dispatcher)

	if cfg.SweepSchedule != "" {
		sweeper, err := image.NewSweeper(imageService, cfg.SweepSchedule, cfg.SweepStaleAfter)
		if err != nil {
			return fmt.Errorf("init sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		slog.Info("stale sweeper enabled", "schedule", cfg.SweepSchedule, "stale_after", cfg.SweepStaleAfter)
	}

	router := server.NewRouter(server.Deps{
		Images:      image.NewHandler(imageService),
		Uploads:     upload.NewHandler(a.Uploads),
		CORSOrigins: cfg.CORSAllowedOrigins,
		Ping:        a.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", cfg.HTTPAddr, "dispatch", cfg.ProcessDispatch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("api stopped")
	return serveErr
}
