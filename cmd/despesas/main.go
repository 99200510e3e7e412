package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"despesas/internal/auth"
	"despesas/internal/backend"
	"despesas/internal/cli"
	"despesas/internal/config"
	apphttp "despesas/internal/http"
	applog "despesas/internal/log"
	"despesas/internal/query"
	"despesas/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := cli.SetupLogger("")
	cli.LoadEnvFile(logger)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Server exited with error", applog.FieldError, err)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(cli.Slog(logger)).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("Failed to close backend", applog.FieldError, err)
		}
	}()

	expiry, err := cfg.JWTExpiry()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == auth.DefaultSecret && cfg.IsProduction() {
		logger.Warn("JWT_SECRET is not set; tokens are signed with the built-in fallback secret")
	}
	authn := auth.New(res.Users, cfg.JWTSecret, expiry)

	created, err := authn.EnsureDefaultUser(ctx, cfg.DefaultUserEmail, cfg.DefaultUserPassword)
	if err != nil {
		return err
	}
	if created {
		logger.Info("Default user ready", "email", cfg.DefaultUserEmail)
	}

	opts := []services.Option{services.WithWindow(query.Window{
		YearsBack:  cfg.MonthSearchYearsBack,
		YearsAhead: cfg.MonthSearchYearsAhead,
	})}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewExpenseService(res.Expenses, opts...)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:        ":" + cfg.Port,
		Environment: cfg.Environment,
		CORSOrigins: cfg.CORSOrigins,
		CacheTTL:    cfg.CacheTTL,
		Logger:      logger,
	}, authn, svc, res.Pinger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting despesas server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
