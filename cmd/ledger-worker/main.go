// Command ledger-worker mirrors the ledger into a Google Sheets tab, on
// change events from AMQP and on a fixed interval.
package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/cli"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration invalid", "error", err)
		os.Exit(1)
	}

	res := cli.OpenBackend(context.Background(), logger, cfg)

	sheetsClient, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	// The AMQP client that would publish for this store doubles as the
	// event source. Without it the worker only polls.
	var source worker.EventSource
	if s, ok := res.Notifier.(worker.EventSource); ok {
		source = s
	} else {
		logger.Info("AMQP disabled, mirroring on interval only", "interval", cfg.SyncInterval)
	}

	w := worker.NewMirrorWorker(res.Store, sheetsClient, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if err := w.Run(ctx, source); err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
