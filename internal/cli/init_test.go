package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger("warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger("loud", &buf)

	logger.Info("still logged")

	assert.Contains(t, buf.String(), "Falling back to info log level")
	assert.Contains(t, buf.String(), "still logged")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("DESPESAS_CLI_TEST=from-file\n"), 0o600))
	t.Setenv("DESPESAS_CLI_TEST", "")
	require.NoError(t, os.Unsetenv("DESPESAS_CLI_TEST"))

	var buf bytes.Buffer
	LoadEnvFile(setupLogger("info", &buf), file, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "from-file", os.Getenv("DESPESAS_CLI_TEST"))
	assert.NotContains(t, buf.String(), "Failed to load env file")
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "not-a-port")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")

	t.Setenv("PORT", "8080")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}
