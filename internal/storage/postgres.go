package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"despesas/internal/core"
	"despesas/internal/query"
)

const pgUniqueViolation = "23505"

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

var (
	_ UserStore    = (*PostgresRepository)(nil)
	_ ExpenseStore = (*PostgresRepository)(nil)
	_ Pinger       = (*PostgresRepository)(nil)
)

// NewPostgresRepository connects to cfg.URL, verifies the connection and
// applies migrations.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const pgUserColumns = "id::text, email, password, created_at, updated_at"

func scanPgUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return core.User{}, notFoundOr(err)
	}
	return u, nil
}

// FindUserByEmail implements UserStore
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanPgUser(r.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return core.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// FindUserByID implements UserStore
func (r *PostgresRepository) FindUserByID(ctx context.Context, id string) (core.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.User{}, fmt.Errorf("find user by id: %w", ErrNotFound)
	}
	u, err := scanPgUser(r.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE id = $1::text::uuid`, id))
	if err != nil {
		return core.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// CreateUser implements UserStore
func (r *PostgresRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	u, err := scanPgUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password) VALUES ($1::text::uuid, $2, $3)
		 RETURNING `+pgUserColumns,
		uuid.NewString(), email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return core.User{}, fmt.Errorf("create user: %w", ErrDuplicateEmail)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User saved to Postgres", "id", u.ID, "email", u.Email)
	return u, nil
}

// SetUserPassword implements UserStore
func (r *PostgresRepository) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password = $1, updated_at = now() WHERE id = $2::text::uuid`,
		passwordHash, id)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set user password: %w", ErrNotFound)
	}
	return nil
}

const pgExpenseColumns = "id::text, title, amount::text, category, date, created_at, updated_at"

func scanPgExpense(row pgx.Row) (core.Expense, error) {
	var (
		e        core.Expense
		amount   string
		category string
		date     time.Time
	)
	if err := row.Scan(&e.ID, &e.Title, &amount, &category, &date, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return core.Expense{}, notFoundOr(err)
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Amount = dec
	e.Category = core.Category(category)
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	return e, nil
}

// CreateExpense implements ExpenseStore
func (r *PostgresRepository) CreateExpense(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	e, err := scanPgExpense(r.pool.QueryRow(ctx,
		`INSERT INTO expenses (id, title, amount, category, date)
		 VALUES ($1::text::uuid, $2, $3::text::numeric, $4, $5)
		 RETURNING `+pgExpenseColumns,
		id, n.Title, n.Amount.StringFixed(core.AmountPlaces), string(n.Category), n.Date.Time))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to Postgres",
		"id", e.ID,
		"title", e.Title,
		"amount", e.Amount.StringFixed(core.AmountPlaces),
		"category", e.Category,
		"date", e.Date.String())
	return e, nil
}

// FindExpense implements ExpenseStore
func (r *PostgresRepository) FindExpense(ctx context.Context, id string) (core.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Expense{}, fmt.Errorf("find expense: %w", ErrNotFound)
	}
	e, err := scanPgExpense(r.pool.QueryRow(ctx,
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE id = $1::text::uuid`, id))
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense: %w", err)
	}
	return e, nil
}

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) DateArg(d core.Date) any { return d.Time }

// ListExpenses implements ExpenseStore
func (r *PostgresRepository) ListExpenses(ctx context.Context, p query.Predicate) ([]core.Expense, error) {
	where, args := p.Where(postgresDialect{})
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE `+where+` ORDER BY date DESC, created_at DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanPgExpense(rows)
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
func (r *PostgresRepository) UpdateExpense(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", ErrNotFound)
	}

	var (
		sets []string
		args []any
	)
	add := func(col, cast string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", col, len(args), cast))
	}
	if p.Title != nil {
		add("title", "", *p.Title)
	}
	if p.Amount != nil {
		add("amount", "::text::numeric", p.Amount.StringFixed(core.AmountPlaces))
	}
	if p.Category != nil {
		add("category", "", string(*p.Category))
	}
	if p.Date != nil {
		add("date", "", p.Date.Time)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	e, err := scanPgExpense(r.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE expenses SET %s WHERE id = $%d::text::uuid RETURNING %s`,
			strings.Join(sets, ", "), len(args), pgExpenseColumns),
		args...))
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

// DeleteExpense implements ExpenseStore
func (r *PostgresRepository) DeleteExpense(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("delete expense: %w", ErrNotFound)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1::text::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete expense: %w", ErrNotFound)
	}

	slog.InfoContext(ctx, "Expense deleted from Postgres", "id", id)
	return nil
}
