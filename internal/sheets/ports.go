package sheets

import (
	"context"

	"despesas/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseMirror keeps an external copy of the full expense list.
	// ReplaceExpenses overwrites the previous copy and returns the number of
	// data rows written.
	ExpenseMirror interface {
		ReplaceExpenses(ctx context.Context, expenses []core.Expense) (rows int, err error)
	}
)
