package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
	"despesas/internal/query"
	"despesas/internal/storage"
)

func TestStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, "a@b.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, "a@b.com", "other"); !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
	got, err := s.FindUserByEmail(ctx, "a@b.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("find by email: %v %+v", err, got)
	}
	if _, err := s.FindUserByEmail(ctx, "A@B.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("email lookup should be case-sensitive, got %v", err)
	}
	if err := s.SetUserPassword(ctx, u.ID, "new"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	got, _ = s.FindUserByID(ctx, u.ID)
	if got.PasswordHash != "new" {
		t.Fatalf("password not updated")
	}
	if err := s.SetUserPassword(ctx, "missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreExpenses(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	mk := func(title string, y, m, d int, c core.Category) core.Expense {
		e, err := s.CreateExpense(ctx, core.NewExpense{
			Title:    title,
			Amount:   decimal.RequireFromString("10.00"),
			Category: c,
			Date:     core.NewDate(y, m, d),
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		return e
	}
	a := mk("a", 2024, 5, 1, core.Lazer)
	b := mk("b", 2025, 5, 1, core.Saude)
	c := mk("c", 2025, 5, 1, core.Saude)

	all, err := s.ListExpenses(ctx, query.Predicate{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != c.ID || all[1].ID != b.ID || all[2].ID != a.ID {
		t.Fatalf("unexpected order: %v", all)
	}

	cat := core.Saude
	only, _ := s.ListExpenses(ctx, query.Predicate{Category: &cat})
	if len(only) != 2 {
		t.Fatalf("expected 2 SAUDE expenses, got %d", len(only))
	}

	title := "renamed"
	upd, err := s.UpdateExpense(ctx, a.ID, core.ExpensePatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Title != "renamed" || !upd.Amount.Equal(a.Amount) || !upd.UpdatedAt.After(a.UpdatedAt) {
		t.Fatalf("unexpected update result: %+v", upd)
	}

	if err := s.DeleteExpense(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindExpense(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.DeleteExpense(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}
