// Package cli holds the start-up steps shared by cmd/fatura, cmd/fatura-worker
// and cmd/fatura-mcp.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fatura/internal/cache"
	"fatura/internal/config"
	"fatura/internal/core"
	applog "fatura/internal/log"
	"fatura/internal/storage"
)

// SetupLogger builds the process logger at LOG_LEVEL and installs it as the
// slog default.
func SetupLogger(level, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// MustAccountBook exits when the account configuration does not parse.
func MustAccountBook(logger *slog.Logger, cfg *config.Config) *core.AccountBook {
	book, err := cfg.AccountBook()
	if err != nil {
		logger.Error("Invalid account configuration", "error", err)
		os.Exit(1)
	}
	return book
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// SnapshotCache picks the report snapshot cache. A Redis cache is shared by
// every process pointing at the same server; when Redis cannot be reached the
// in-process cache is used instead. The returned cleanup closes the client.
func SnapshotCache(ctx context.Context, logger *slog.Logger, cfg *config.Config, manager *cache.Manager) (cache.Cache[core.Snapshot], func()) {
	if cfg.CacheBackend == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("Using Redis snapshot cache")
			return cache.NewRedisCache[core.Snapshot](client, "fatura:", cfg.SnapshotTTL), func() { _ = client.Close() }
		}
		logger.Warn("Redis unavailable, falling back to in-process cache", "error", err)
	}
	lru := cache.NewLRUCache[core.Snapshot](1, cfg.SnapshotTTL)
	if manager != nil {
		manager.Register(lru)
	}
	return lru, func() {}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
