package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/backend"
	"moneyflow/internal/cache"
	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	"moneyflow/internal/ledger"
	"moneyflow/internal/log"
	"moneyflow/internal/sheets"
	gsheet "moneyflow/internal/sheets/google"
	"moneyflow/internal/worker"
)

const cacheSweepInterval = 5 * time.Minute

func main() {
	resync := flag.String("resync", "", "comma-separated user ids to audit and export on startup")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)
	cfg = cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err, "backend", cfg.DataBackend)
	}
	backendCfg = backendCfg.ForReader()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	logger.Info("Starting moneyflow-worker",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		"sheets", cfg.SheetsEnabled(),
		"audit_on_event", cfg.AuditOnEvent)

	if err := run(ctx, cfg, backendCfg, splitIDs(*resync), logger); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		cli.Fatal(logger, "Worker stopped with error", err)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, backendCfg backend.Config, resync []string, logger *log.Logger) error {
	res, err := backend.NewFactory(logger.Logger).CreateStore(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s storage: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Storage cleanup failed", log.FieldError, err)
		}
	}()

	var exporter sheets.LedgerExporter
	if cfg.SheetsEnabled() {
		exp, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			SheetPrefix:        cfg.GoogleSheetPrefix,
		})
		if err != nil {
			return fmt.Errorf("initialize google sheets exporter: %w", err)
		}
		exporter = exp
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	svc := ledger.NewService(res.Store, nil, logger)
	w := worker.NewLedgerWorker(svc, exporter, cfg.AuditOnEvent, logger)

	caches := cache.NewManager(logger.Logger)
	caches.Register(w.SeenCache())
	caches.StartCleanup(cacheSweepInterval)
	defer caches.Stop()

	if len(resync) > 0 {
		synced, failed := w.Resync(ctx, resync)
		logger.Info("Startup resync finished", "synced", synced, "errors", failed)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize amqp client: %w", err)
	}
	defer client.Close()

	logger.Info("Consuming ledger changes", "queue", cfg.AMQPQueue)
	return client.ConsumeLedgerChanged(ctx, w.HandleLedgerChanged)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
