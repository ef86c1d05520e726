package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppEnv          = "dev"
	defaultHTTPAddr        = ":8080"
	defaultDatabaseURL     = "file:cutout.db?cache=shared"
	defaultStoreDriver     = StoreGorm
	defaultUploadBackend   = UploadLocal
	defaultUploadDir       = "./uploads"
	defaultMinioBucket     = "cutout-uploads"
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultDispatch        = DispatchLocal
	defaultWorkers         = "2"
	defaultProcessMaxSide  = "512"
	defaultSweepStaleAfter = "1h"
	defaultLogLevel        = "info"
)

const (
	StoreGorm = "gorm"
	StorePgx  = "pgx"

	UploadLocal = "local"
	UploadMinio = "minio"

	DispatchAsynq = "asynq"
	DispatchLocal = "local"
	DispatchNone  = "none"
)

// Config is the runtime configuration shared by cmd/api and cmd/worker.
type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL string
	StoreDriver string

	UploadBackend  string
	UploadDir      string
	UploadMaxBytes int64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProcessDispatch string
	ProcessWorkers  int
	ProcessMaxSide  int
	RemoverURL      string

	SweepSchedule   string
	SweepStaleAfter time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}

	cfg := &Config{}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", defaultAppEnv)))
	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))

	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", defaultStoreDriver)))

	cfg.UploadBackend = strings.ToLower(strings.TrimSpace(getEnv("UPLOAD_BACKEND", defaultUploadBackend)))
	cfg.UploadDir = strings.TrimSpace(getEnv("UPLOAD_DIR", defaultUploadDir))

	cfg.MinioEndpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	cfg.MinioAccessKey = strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	cfg.MinioSecretKey = strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	cfg.MinioBucket = strings.TrimSpace(getEnv("MINIO_BUCKET", defaultMinioBucket))
	cfg.MinioUseSSL = parseBoolEnv("MINIO_USE_SSL", "false")

	cfg.RedisAddr = strings.TrimSpace(getEnv("REDIS_ADDR", defaultRedisAddr))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.ProcessDispatch = strings.ToLower(strings.TrimSpace(getEnv("PROCESS_DISPATCH", defaultDispatch)))
	cfg.RemoverURL = strings.TrimSpace(os.Getenv("REMOVER_URL"))
	cfg.SweepSchedule = strings.TrimSpace(os.Getenv("SWEEP_SCHEDULE"))
	cfg.CORSAllowedOrigins = parseListEnv("CORS_ALLOWED_ORIGINS")

	var err error
	if cfg.UploadMaxBytes, err = parseInt64Env("UPLOAD_MAX_BYTES", "0"); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.ProcessWorkers, err = parseIntEnv("PROCESS_WORKERS", defaultWorkers); err != nil {
		return nil, err
	}
	if cfg.ProcessMaxSide, err = parseIntEnv("PROCESS_MAX_SIDE", defaultProcessMaxSide); err != nil {
		return nil, err
	}
	if cfg.SweepStaleAfter, err = parseDurationEnv("SWEEP_STALE_AFTER", defaultSweepStaleAfter); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDev reports whether the service runs in a local development environment.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development" || c.AppEnv == "local"
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	switch cfg.StoreDriver {
	case StoreGorm:
	case StorePgx:
		if !isPostgresDSN(cfg.DatabaseURL) {
			return fmt.Errorf("STORE_DRIVER=pgx requires a postgres:// DATABASE_URL")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: gorm, pgx")
	}
	switch cfg.UploadBackend {
	case UploadLocal:
		if cfg.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR must not be empty")
		}
	case UploadMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return fmt.Errorf("UPLOAD_BACKEND=minio requires MINIO_ENDPOINT and MINIO_BUCKET")
		}
	default:
		return fmt.Errorf("UPLOAD_BACKEND must be one of: local, minio")
	}
	if cfg.UploadMaxBytes < 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be >= 0")
	}
	switch cfg.ProcessDispatch {
	case DispatchAsynq, DispatchLocal, DispatchNone:
	default:
		return fmt.Errorf("PROCESS_DISPATCH must be one of: asynq, local, none")
	}
	if cfg.ProcessWorkers <= 0 {
		return fmt.Errorf("PROCESS_WORKERS must be > 0")
	}
	if cfg.ProcessMaxSide < 16 {
		return fmt.Errorf("PROCESS_MAX_SIDE must be >= 16")
	}
	if cfg.SweepSchedule != "" && cfg.SweepStaleAfter <= 0 {
		return fmt.Errorf("SWEEP_STALE_AFTER must be > 0 when SWEEP_SCHEDULE is set")
	}
	return nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseInt64Env(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseListEnv(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
