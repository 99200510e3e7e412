package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"despesas/internal/core"
	"despesas/internal/query"

	_ "modernc.org/sqlite"
)

// Fixed-width so that timestamps stored as text sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ UserStore    = (*SQLiteRepository)(nil)
	_ ExpenseStore = (*SQLiteRepository)(nil)
	_ Pinger       = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(sqliteTimeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func scanSQLiteUser(row rowScanner) (core.User, error) {
	var (
		u                core.User
		created, updated string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, ErrNotFound
		}
		return core.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return core.User{}, err
	}
	if u.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return core.User{}, err
	}
	return u, nil
}

const sqliteUserColumns = "id, email, password, created_at, updated_at"

// FindUserByEmail implements UserStore
func (r *SQLiteRepository) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sqliteUserColumns+" FROM users WHERE email = ?", email)
	u, err := scanSQLiteUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// FindUserByID implements UserStore
func (r *SQLiteRepository) FindUserByID(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sqliteUserColumns+" FROM users WHERE id = ?", id)
	u, err := scanSQLiteUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// CreateUser implements UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	id := uuid.NewString()
	ts := r.timestamp()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, email, passwordHash, ts, ts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.User{}, fmt.Errorf("create user: %w", ErrDuplicateEmail)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "id", id, "email", email)
	return r.FindUserByID(ctx, id)
}

// SetUserPassword implements UserStore
func (r *SQLiteRepository) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password = ?, updated_at = ? WHERE id = ?",
		passwordHash, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	return requireAffected(res, "set user password")
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

const sqliteExpenseColumns = "id, title, amount_cents, category, date, created_at, updated_at"

func scanSQLiteExpense(row rowScanner) (core.Expense, error) {
	var (
		e                core.Expense
		cents            int64
		category, date   string
		created, updated string
	)
	if err := row.Scan(&e.ID, &e.Title, &cents, &category, &date, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, ErrNotFound
		}
		return core.Expense{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	e.Date = d
	e.Amount = core.FromCents(cents)
	e.Category = core.Category(category)
	if e.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return core.Expense{}, err
	}
	if e.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// CreateExpense implements ExpenseStore
func (r *SQLiteRepository) CreateExpense(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	cents, err := core.Cents(n.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	ts := r.timestamp()
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO expenses ("+sqliteExpenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, n.Title, cents, string(n.Category), n.Date.String(), ts, ts)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"title", n.Title,
		"amount", n.Amount.StringFixed(core.AmountPlaces),
		"category", n.Category,
		"date", n.Date.String())

	return r.FindExpense(ctx, id)
}

// FindExpense implements ExpenseStore
func (r *SQLiteRepository) FindExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sqliteExpenseColumns+" FROM expenses WHERE id = ?", id)
	e, err := scanSQLiteExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense: %w", err)
	}
	return e, nil
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) DateArg(d core.Date) any { return d.String() }

// ListExpenses implements ExpenseStore
func (r *SQLiteRepository) ListExpenses(ctx context.Context, p query.Predicate) ([]core.Expense, error) {
	where, args := p.Where(sqliteDialect{})
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sqliteExpenseColumns+" FROM expenses WHERE "+where+" ORDER BY date DESC, created_at DESC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanSQLiteExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// UpdateExpense implements ExpenseStore
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error) {
	var (
		sets []string
		args []any
	)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Amount != nil {
		cents, err := core.Cents(*p.Amount)
		if err != nil {
			return core.Expense{}, fmt.Errorf("update expense: %w", err)
		}
		sets = append(sets, "amount_cents = ?")
		args = append(args, cents)
	}
	if p.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, string(*p.Category))
	}
	if p.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, p.Date.String())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.timestamp(), id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if err := requireAffected(res, "update expense"); err != nil {
		return core.Expense{}, err
	}
	return r.FindExpense(ctx, id)
}

// DeleteExpense implements ExpenseStore
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if err := requireAffected(res, "delete expense"); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	return nil
}
