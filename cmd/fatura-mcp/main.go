package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/server"

	"fatura/internal/backend"
	"fatura/internal/cli"
	applog "fatura/internal/log"
	"fatura/internal/mcptools"
	"fatura/internal/services"
)

const version = "1.0.0"

func main() {
	cli.LoadEnvFile()

	// stdout carries the MCP protocol.
	logger := applog.New(applog.Config{
		Component: applog.ComponentMCP,
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		}),
	})
	applog.SetDefault(logger)

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	accounts := cli.MustAccountBook(logger.Logger, cfg)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer result.Close()

	snapshots, closeSnapshots := cli.SnapshotCache(ctx, logger.Logger, cfg, nil)
	defer closeSnapshots()

	reports := services.NewReportService(result.Backend, result.Backend, accounts, snapshots)

	var purchases mcptools.Purchases
	if readOnly, _ := strconv.ParseBool(os.Getenv("MCP_READ_ONLY")); !readOnly {
		purchases = services.NewPurchaseService(result.Backend, accounts, reports.Invalidate)
	}

	s := server.NewMCPServer(
		"fatura",
		version,
		server.WithToolCapabilities(false),
	)
	mcptools.New(reports, purchases).RegisterTools(s)

	logger.Info("Serving MCP over stdio", "backend", cfg.DataBackend, "read_only", purchases == nil)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
