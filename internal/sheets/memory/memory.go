// Package memory holds the mirrored expense rows in process memory. The
// worker falls back to it when no spreadsheet is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"despesas/internal/core"
	ports "despesas/internal/sheets"
)

var _ ports.ExpenseMirror = (*Mirror)(nil)

type Mirror struct {
	mu       sync.Mutex
	items    []core.Expense
	replaced int
	lastSync time.Time
}

func New() *Mirror {
	return &Mirror{}
}

// ReplaceExpenses implements ports.ExpenseMirror.
func (m *Mirror) ReplaceExpenses(_ context.Context, expenses []core.Expense) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]core.Expense(nil), expenses...)
	m.replaced++
	m.lastSync = time.Now()
	return len(m.items), nil
}

// Expenses returns a copy of the last mirrored list.
func (m *Mirror) Expenses() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Expense(nil), m.items...)
}

// Replacements counts ReplaceExpenses calls.
func (m *Mirror) Replacements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaced
}

func (m *Mirror) LastSync() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}
