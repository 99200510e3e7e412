package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/amqp"
	"despesas/internal/core"
	"despesas/internal/query"
	"despesas/internal/storage"
)

// EventPublisher announces expense mutations to other processes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error
}

// ListResult is the outcome of FindAll.
type ListResult struct {
	Expenses []core.Expense
	Total    int
	Sum      decimal.Decimal
	// Applied echoes the filter; nil when no filter was given.
	Applied *core.Filter
}

type Stats struct {
	Count       int
	Sum         decimal.Decimal
	PerCategory []core.CategorySummary
	Period      core.Period
}

// ExpenseService applies expense rules on top of an ExpenseStore.
type ExpenseService struct {
	store     storage.ExpenseStore
	publisher EventPublisher
	window    query.Window
	now       func() time.Time
}

type Option func(*ExpenseService)

// WithPublisher publishes an event after every successful mutation.
func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithWindow(w query.Window) Option {
	return func(s *ExpenseService) { s.window = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(store storage.ExpenseStore, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:  store,
		window: query.DefaultWindow(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExpenseService) predicate(f core.Filter) query.Predicate {
	return query.Build(f, s.now(), s.window)
}

// FindAll lists matching expenses newest first with their count and sum.
func (s *ExpenseService) FindAll(ctx context.Context, f core.Filter) (ListResult, error) {
	expenses, err := s.store.ListExpenses(ctx, s.predicate(f))
	if err != nil {
		return ListResult{}, fmt.Errorf("find expenses: %w", err)
	}

	res := ListResult{
		Expenses: expenses,
		Total:    len(expenses),
		Sum:      core.SumAmounts(expenses),
	}
	if !f.IsEmpty() {
		applied := f
		res.Applied = &applied
	}
	return res, nil
}

// Stats aggregates matching expenses overall and per category.
func (s *ExpenseService) Stats(ctx context.Context, f core.Filter) (Stats, error) {
	expenses, err := s.store.ListExpenses(ctx, s.predicate(f))
	if err != nil {
		return Stats{}, fmt.Errorf("expense stats: %w", err)
	}
	return Stats{
		Count:       len(expenses),
		Sum:         core.SumAmounts(expenses),
		PerCategory: core.Summarize(expenses),
		Period:      core.Period{Month: f.Month, Year: f.Year},
	}, nil
}

func (s *ExpenseService) FindOne(ctx context.Context, id string) (core.Expense, error) {
	e, err := s.store.FindExpense(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense %s: %w", id, err)
	}
	return e, nil
}

func (s *ExpenseService) Create(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	if err := n.Validate(); err != nil {
		return core.Expense{}, err
	}
	n.Amount = core.RoundAmount(n.Amount)

	e, err := s.store.CreateExpense(ctx, n)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created", "id", e.ID, "category", e.Category)
	s.publish(ctx, e.ID, amqp.ActionCreated)
	return e, nil
}

// Update changes only the fields set in p. A missing expense is reported
// before any validation of p.
func (s *ExpenseService) Update(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error) {
	if _, err := s.FindOne(ctx, id); err != nil {
		return core.Expense{}, err
	}
	if err := p.Validate(); err != nil {
		return core.Expense{}, err
	}
	if p.Amount != nil {
		rounded := core.RoundAmount(*p.Amount)
		p.Amount = &rounded
	}

	e, err := s.store.UpdateExpense(ctx, id, p)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense updated", "id", id)
	s.publish(ctx, id, amqp.ActionUpdated)
	return e, nil
}

func (s *ExpenseService) Remove(ctx context.Context, id string) error {
	if _, err := s.FindOne(ctx, id); err != nil {
		return err
	}

	err := s.store.DeleteExpense(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &core.NotFoundError{ID: id}
	}
	if err != nil {
		return fmt.Errorf("remove expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense removed", "id", id)
	s.publish(ctx, id, amqp.ActionDeleted)
	return nil
}

// publish never fails the caller; the mutation is already committed.
func (s *ExpenseService) publish(ctx context.Context, id string, action amqp.Action) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(id, action)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"id", id,
			"action", action,
			"error", err)
	}
}
