// Command seed prepares a database for local use: it resets the default
// user's password and inserts a few sample expenses.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"despesas/internal/auth"
	"despesas/internal/backend"
	"despesas/internal/cli"
	"despesas/internal/core"
	applog "despesas/internal/log"
	"despesas/internal/storage"
)

type sampleExpense struct {
	id       string
	title    string
	amount   string
	category core.Category
	date     string
}

var samples = []sampleExpense{
	{"550e8400-e29b-41d4-a716-446655440002", "Posto de Gasolina Shell", "89.90", core.Transporte, "2025-04-24"},
	{"550e8400-e29b-41d4-a716-446655440003", "Cinema - Ingresso Duplo", "45.00", core.Lazer, "2024-05-23"},
	{"550e8400-e29b-41d4-a716-446655440004", "Farmácia - Medicamentos", "67.80", core.Saude, "2021-01-22"},
}

type seedResult struct {
	userCreated     bool
	expensesCreated int
}

func main() {
	logger := cli.SetupLogger("")
	cli.LoadEnvFile(logger)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	bcfg.AMQPURL = ""

	ctx := context.Background()
	res, err := backend.NewFactory(cli.Slog(logger)).CreateBackend(ctx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to open backend", err)
	}

	out, err := seed(ctx, res.Users, res.Expenses, cfg.DefaultUserEmail, cfg.DefaultUserPassword)
	if closeErr := res.Close(); closeErr != nil {
		logger.Warn("Failed to close backend", applog.FieldError, closeErr)
	}
	if err != nil {
		cli.Fatal(logger, "Seed failed", err)
	}

	logger.Info("Seed complete",
		"email", cfg.DefaultUserEmail,
		"user_created", out.userCreated,
		"expenses_created", out.expensesCreated,
		"backend", cfg.DataBackend)
}

// seed upserts the user and inserts every sample whose id is not stored yet.
func seed(ctx context.Context, users storage.UserStore, expenses storage.ExpenseStore, email, password string) (seedResult, error) {
	var out seedResult

	created, err := auth.UpsertUser(ctx, users, email, password)
	if err != nil {
		return out, err
	}
	out.userCreated = created

	for _, s := range samples {
		_, err := expenses.FindExpense(ctx, s.id)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return out, fmt.Errorf("look up sample %s: %w", s.id, err)
		}

		date, err := core.ParseDate(s.date)
		if err != nil {
			return out, fmt.Errorf("sample %s: %w", s.id, err)
		}
		n := core.NewExpense{
			ID:       s.id,
			Title:    s.title,
			Amount:   decimal.RequireFromString(s.amount),
			Category: s.category,
			Date:     date,
		}
		if err := n.Validate(); err != nil {
			return out, fmt.Errorf("sample %s: %w", s.id, err)
		}
		if _, err := expenses.CreateExpense(ctx, n); err != nil {
			return out, fmt.Errorf("create sample %s: %w", s.id, err)
		}
		out.expensesCreated++
	}
	return out, nil
}
