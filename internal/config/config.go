package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"despesas/internal/auth"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	// HTTP Server
	Port        string
	Environment string
	LogLevel    string
	CORSOrigins []string
	CacheTTL    time.Duration

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	DatabaseURL  string
	DBMaxConns   int
	DBMinConns   int

	// Auth
	JWTSecret           string
	JWTExpiresIn        string
	DefaultUserEmail    string
	DefaultUserPassword string

	// Month-only filters search this many years around the current one
	MonthSearchYearsBack  int
	MonthSearchYearsAhead int

	// AMQP (optional; events are not published when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	SyncInterval time.Duration
}

func Load() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	defaultBackend := BackendSQLite
	if databaseURL != "" {
		defaultBackend = BackendPostgres
	}

	cfg := &Config{
		Port:        getEnv("PORT", "3000"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		CacheTTL:    getEnvDuration("CACHE_TTL", time.Minute),

		DataBackend: getEnv("DATA_BACKEND", defaultBackend),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/despesas.db"),
		DatabaseURL:  databaseURL,
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 5),
		DBMinConns:   getEnvInt("DB_MIN_CONNS", 1),

		JWTSecret:           getEnv("JWT_SECRET", auth.DefaultSecret),
		JWTExpiresIn:        getEnv("JWT_EXPIRES_IN", "7d"),
		DefaultUserEmail:    getEnv("DEFAULT_USER_EMAIL", "admin@expenses.com"),
		DefaultUserPassword: getEnv("DEFAULT_USER_PASSWORD", "admin123"),

		MonthSearchYearsBack:  getEnvInt("MONTH_SEARCH_YEARS_BACK", 5),
		MonthSearchYearsAhead: getEnvInt("MONTH_SEARCH_YEARS_AHEAD", 2),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "despesas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "despesas_sheets"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Despesas"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
	}

	return cfg
}

// JWTExpiry parses JWTExpiresIn.
func (c *Config) JWTExpiry() (time.Duration, error) {
	return auth.ParseExpiry(c.JWTExpiresIn)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	validBackends := []string{BackendSQLite, BackendPostgres, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == BackendPostgres {
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
		if c.DBMaxConns < 1 {
			errors = append(errors, fmt.Sprintf("invalid DB_MAX_CONNS %d: must be at least 1", c.DBMaxConns))
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			errors = append(errors, fmt.Sprintf("invalid DB_MIN_CONNS %d: must be between 0 and DB_MAX_CONNS", c.DBMinConns))
		}
	}

	if _, err := c.JWTExpiry(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid JWT_EXPIRES_IN '%s': %v", c.JWTExpiresIn, err))
	}
	if c.DefaultUserEmail == "" {
		errors = append(errors, "DEFAULT_USER_EMAIL cannot be empty")
	}
	if len(c.DefaultUserPassword) < 6 {
		errors = append(errors, "DEFAULT_USER_PASSWORD must have at least 6 characters")
	}

	if c.MonthSearchYearsBack < 0 || c.MonthSearchYearsAhead < 0 {
		errors = append(errors, "month search window years cannot be negative")
	}

	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: cannot be negative", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: cannot be negative", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings only the mirror worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" && c.SyncInterval == 0 {
		errors = append(errors, "worker needs AMQP_URL or a positive SYNC_INTERVAL")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations and bare seconds; "0" disables.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
