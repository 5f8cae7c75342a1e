package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fatura/internal/backend"
	"fatura/internal/cache"
	"fatura/internal/cli"
	"fatura/internal/conversation"
	apphttp "fatura/internal/http"
	applog "fatura/internal/log"
	"fatura/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	accounts := cli.MustAccountBook(logger.Logger, cfg)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	caches := cache.NewManager()
	snapshots, closeSnapshots := cli.SnapshotCache(context.Background(), logger.Logger, cfg, caches)
	sessions := cache.NewLRUCache[conversation.Session](conversation.MaxSessions, conversation.SessionTTL)
	caches.Register(sessions)
	caches.StartCleanup(10 * time.Minute)

	reports := services.NewReportService(result.Backend, result.Backend, accounts, snapshots)
	purchases := services.NewPurchaseService(result.Backend, accounts, reports.Invalidate)
	chats := conversation.NewManager(purchases, reports, conversation.Options{
		Accounts:   cfg.AccountOptions(),
		Owners:     cfg.LedgerOwners,
		Categories: cfg.LedgerCategories,
	}, sessions)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Reports:            reports,
		Purchases:          purchases,
		Conversations:      chats,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 40 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		closeSnapshots()
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting fatura server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
