package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"despesas/internal/amqp"
	"despesas/internal/backend"
	"despesas/internal/cli"
	"despesas/internal/config"
	applog "despesas/internal/log"
	"despesas/internal/sheets"
	gsheet "despesas/internal/sheets/google"
	sheetmem "despesas/internal/sheets/memory"
	"despesas/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := cli.SetupLogger("")
	cli.LoadEnvFile(logger)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)

	if err := cfg.ValidateWorker(); err != nil {
		cli.Fatal(logger, "Worker configuration validation failed", err)
	}

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Worker exited with error", applog.FieldError, err)
		stop()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func newMirror(ctx context.Context, logger *applog.Logger, cfg *config.Config) (sheets.ExpenseMirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided; mirroring in memory")
		return sheetmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// The worker consumes events; it never publishes them.
	bcfg.AMQPURL = ""

	res, err := backend.NewFactory(cli.Slog(logger)).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("Failed to close backend", applog.FieldError, err)
		}
	}()

	mirror, err := newMirror(ctx, logger, cfg)
	if err != nil {
		return err
	}

	w := worker.NewMirrorWorker(res.Expenses, mirror, cfg.SyncInterval)
	g, gctx := errgroup.WithContext(ctx)

	if err := w.Start(gctx); err != nil {
		return err
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			_ = w.Stop(context.Background())
			return err
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeExpenseEvents(gctx, w.HandleExpenseEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker...", applog.FieldOperation, applog.OpShutdown)
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return w.Stop(stopCtx)
	})
	return g.Wait()
}
