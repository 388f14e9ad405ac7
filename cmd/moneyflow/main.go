package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"moneyflow/internal/backend"
	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	apphttp "moneyflow/internal/http"
	"moneyflow/internal/ledger"
	"moneyflow/internal/log"
	"moneyflow/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	readyProbeUser  = "__readyz__"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentApp)
	cfg = cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err, "backend", cfg.DataBackend)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, backendCfg, logger); err != nil {
		stop()
		cli.Fatal(logger, "Server stopped with error", err, "port", cfg.Port)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, backendCfg backend.Config, logger *log.Logger) error {
	res, err := backend.NewFactory(logger.Logger).CreateStore(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize %s storage: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Storage cleanup failed", log.FieldError, err)
		}
	}()

	svc := ledger.NewService(res.Store, res.Publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		UserIDHeader:       cfg.UserIDHeader,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Ready: func(ctx context.Context) error {
			_, err := res.Store.Get(ctx, readyProbeUser)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneyflow server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
