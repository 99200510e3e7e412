package storage

import (
	"context"
	"errors"

	"despesas/internal/core"
	"despesas/internal/query"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when creating a user whose email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserStore persists users.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (core.User, error)
	FindUserByID(ctx context.Context, id string) (core.User, error)
	CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
	SetUserPassword(ctx context.Context, id, passwordHash string) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, n core.NewExpense) (core.Expense, error)
	FindExpense(ctx context.Context, id string) (core.Expense, error)
	// ListExpenses returns matching expenses ordered by date, newest first.
	ListExpenses(ctx context.Context, p query.Predicate) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// Pinger reports whether the underlying database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
