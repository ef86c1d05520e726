package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"cutout/internal/config"
	"cutout/internal/database"
	"cutout/internal/domain/image"
	"cutout/internal/domain/upload"
	"cutout/internal/processing"
	"cutout/internal/queue"
	"cutout/internal/worker"
)

// App holds the long-lived dependencies shared by the API and the worker.
type App struct {
	Images  image.Repository
	Uploads *upload.Service
	Remover processing.Remover

	db   *gorm.DB
	pool *pgxpool.Pool
}

// New opens the configured Record Store and blob storage.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Remover: processing.New(cfg.RemoverURL, cfg.ProcessMaxSide)}

	switch cfg.StoreDriver {
	case config.StorePgx:
		pool, err := database.ConnectPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := image.NewPgRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool, a.Images = pool, repo
	default:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := image.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.db, a.Images = db, image.NewRepository(db)
	}
	slog.Info("record store ready", "driver", cfg.StoreDriver)

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Uploads = upload.NewService(storage, cfg.UploadMaxBytes)
	slog.Info("upload storage ready", "backend", cfg.UploadBackend)
	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (upload.Storage, error) {
	if cfg.UploadBackend == config.UploadMinio {
		return upload.NewMinioStorage(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return upload.NewLocalStorage(cfg.UploadDir)
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	if a.pool != nil {
		return a.pool.Ping(ctx)
	}
	if a.db != nil {
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return errors.New("no record store")
}

// Processor builds the background-removal processor over the app's stores.
func (a *App) Processor() *worker.Processor {
	return worker.NewProcessor(a.Images, a.Uploads, a.Remover)
}

// Dispatcher returns the image.Dispatcher for cfg.ProcessDispatch and a stop
// function to call on shutdown. It returns a nil dispatcher for "none".
func (a *App) Dispatcher(ctx context.Context, cfg *config.Config) (image.Dispatcher, func(), error) {
	switch cfg.ProcessDispatch {
	case config.DispatchAsynq:
		client := asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		return queue.NewAsynqDispatcher(client), func() { _ = client.Close() }, nil
	case config.DispatchLocal:
		poolCtx, cancel := context.WithCancel(ctx)
		p := worker.NewPool(a.Processor(), cfg.ProcessWorkers)
		p.Start(poolCtx)
		return p, func() { cancel(); p.Wait() }, nil
	case config.DispatchNone, "":
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown process dispatch %q", cfg.ProcessDispatch)
	}
}

// Close releases database connections.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			slog.Warn("close database", "error", err)
		}
	}
}
