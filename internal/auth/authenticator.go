// Package auth verifies credentials and issues and validates bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"despesas/internal/core"
	"despesas/internal/storage"
)

const (
	// DefaultSecret is used when no signing secret is configured.
	DefaultSecret = "expenses-api-secret-fallback"
	// DefaultExpiry matches JWT_EXPIRES_IN=7d.
	DefaultExpiry = 7 * 24 * time.Hour

	TokenType  = "Bearer"
	bcryptCost = 10
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("expired token")
	ErrUserNotFound       = errors.New("user not found")
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type LoginResult struct {
	Token     string
	TokenType string
	ExpiresIn int64
	User      Identity
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	users  storage.UserStore
	secret []byte
	expiry time.Duration
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// New returns an Authenticator signing with secret. An empty secret falls back
// to DefaultSecret and a non-positive expiry to DefaultExpiry.
func New(users storage.UserStore, secret string, expiry time.Duration) *Authenticator {
	if secret == "" {
		secret = DefaultSecret
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Authenticator{
		users:  users,
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for issuing and validating tokens.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Login checks the credentials and issues a signed token. Unknown email and
// wrong password return the same error.
func (a *Authenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := a.users.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		a.burnCompare(password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := a.issue(u)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", u.ID)
	return LoginResult{
		Token:     token,
		TokenType: TokenType,
		ExpiresIn: int64(a.expiry / time.Second),
		User:      Identity{ID: u.ID, Email: u.Email},
	}, nil
}

func (a *Authenticator) issue(u core.User) (string, error) {
	now := a.now()
	c := claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// burnCompare spends one bcrypt comparison so unknown emails take as long as
// wrong passwords.
func (a *Authenticator) burnCompare(password string) {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
}

// VerifyToken validates the signature and expiry of token and confirms the
// subject still exists.
func (a *Authenticator) VerifyToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpiredToken
	case err != nil:
		return Identity{}, ErrInvalidToken
	case c.Subject == "":
		return Identity{}, ErrInvalidToken
	}

	u, err := a.users.FindUserByID(ctx, c.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, ErrUserNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("verify token: %w", err)
	}
	return Identity{ID: u.ID, Email: u.Email}, nil
}

// EnsureDefaultUser creates the user when the email is not registered yet.
// An existing user keeps its password.
func (a *Authenticator) EnsureDefaultUser(ctx context.Context, email, password string) (bool, error) {
	_, err := a.users.FindUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("ensure default user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("ensure default user: %w", err)
	}
	if _, err := a.users.CreateUser(ctx, email, hash); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return false, nil
		}
		return false, fmt.Errorf("ensure default user: %w", err)
	}

	slog.InfoContext(ctx, "Default user created", "email", email)
	return true, nil
}

// UpsertUser creates the user or, when the email is taken, replaces its
// password hash. It reports whether a new user was created.
func UpsertUser(ctx context.Context, users storage.UserStore, email, password string) (bool, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}

	u, err := users.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.SetUserPassword(ctx, u.ID, hash); err != nil {
			return false, fmt.Errorf("upsert user: %w", err)
		}
		return false, nil
	case errors.Is(err, storage.ErrNotFound):
		if _, err := users.CreateUser(ctx, email, hash); err != nil {
			return false, fmt.Errorf("upsert user: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("upsert user: %w", err)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Anything else yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != TokenType || token == "" || strings.Contains(token, " ") {
		return ""
	}
	return token
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ParseExpiry reads a token lifetime: "7d" is days, "12h" hours and a bare
// integer seconds. Other Go duration strings such as "90m" are accepted too.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty expiry")
	}

	var d time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid expiry %q: %w", s, err)
		}
		d = time.Duration(n) * 24 * time.Hour
	default:
		if n, err := strconv.Atoi(s); err == nil {
			d = time.Duration(n) * time.Second
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry %q: %w", s, err)
		}
		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", s)
	}
	return d, nil
}
