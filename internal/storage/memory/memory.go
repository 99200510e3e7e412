// Package memory is a process-local store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"despesas/internal/core"
	"despesas/internal/query"
	"despesas/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]core.User
	expenses map[string]core.Expense
}

var (
	_ storage.UserStore    = (*Store)(nil)
	_ storage.ExpenseStore = (*Store)(nil)
	_ storage.Pinger       = (*Store)(nil)
)

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[string]core.User),
		expenses: make(map[string]core.Expense),
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) FindUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("find user by email: %w", storage.ErrNotFound)
}

func (s *Store) FindUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("find user by id: %w", storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return core.User{}, fmt.Errorf("create user: %w", storage.ErrDuplicateEmail)
		}
	}
	ts := s.now().UTC()
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) SetUserPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("set user password: %w", storage.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return nil
}

func (s *Store) CreateExpense(_ context.Context, n core.NewExpense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.expenses[id]; exists {
		return core.Expense{}, fmt.Errorf("create expense: duplicate id %s", id)
	}
	ts := s.now().UTC()
	e := core.Expense{
		ID:        id,
		Title:     n.Title,
		Amount:    core.RoundAmount(n.Amount),
		Category:  n.Category,
		Date:      n.Date,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.expenses[id] = e
	return e, nil
}

func (s *Store) FindExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("find expense: %w", storage.ErrNotFound)
	}
	return e, nil
}

// ListExpenses returns matches ordered by date then creation time, newest first.
func (s *Store) ListExpenses(_ context.Context, p query.Predicate) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if p.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, id string, p core.ExpensePatch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("update expense: %w", storage.ErrNotFound)
	}
	e = p.Apply(e)
	e.Amount = core.RoundAmount(e.Amount)
	e.UpdatedAt = s.now().UTC()
	s.expenses[id] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return fmt.Errorf("delete expense: %w", storage.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}
