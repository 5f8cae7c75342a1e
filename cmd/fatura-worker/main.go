package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fatura/internal/amqp"
	"fatura/internal/backend"
	"fatura/internal/cli"
	applog "fatura/internal/log"
	gsheet "fatura/internal/sheets/google"
	"fatura/internal/worker"
)

// budgetRefreshInterval is how often the budget tab is mirrored into SQLite.
const budgetRefreshInterval = 24 * time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting fatura-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)

	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("fatura-worker needs GOOGLE_SPREADSHEET_ID to mirror the ledger")
		os.Exit(1)
	}
	sheetsClient, err := gsheet.New(context.Background(), backend.SheetsConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, sheetsClient, cfg.SyncBatchSize)

	if err := syncWorker.MirrorBudget(ctx); err != nil {
		logger.Error("Failed to mirror budget", "error", err)
	}
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeLedgerSync(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				stop()
			}
		}()
	} else {
		logger.Info("AMQP disabled, relying on periodic sync only", "interval", cfg.SyncInterval)
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()
	budgetTicker := time.NewTicker(budgetRefreshInterval)
	defer budgetTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopped", "reason", context.Cause(ctx))
			return
		case <-ticker.C:
			if err := syncWorker.ProcessPending(ctx); err != nil {
				logger.Error("Periodic sync failed", "error", err)
			}
		case <-budgetTicker.C:
			if err := syncWorker.MirrorBudget(ctx); err != nil {
				logger.Error("Periodic budget mirror failed", "error", err)
			}
		}
	}
}
