package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/book-import/internal/config"
)

func TestLoadDefaultsWithMemoryStore(t *testing.T) {
	t.Setenv("IMPORT_STORE", "memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 8, cfg.Import.Workers)
	assert.Equal(t, 25, cfg.Import.ChunkSize)
	assert.Equal(t, 3, cfg.Import.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Import.LookupTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Import.StaleAfter)
	assert.Equal(t, "https://openlibrary.org", cfg.Lookup.OpenLibraryURL)
	assert.Empty(t, cfg.SMTP.Host)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("IMPORT_STORE=memory\nIMPORT_WORKERS=3\nIMPORT_RETRY_BACKOFF=1s\nLOG_FORMAT=json\n"), 0o600))

	for _, key := range []string{"IMPORT_STORE", "IMPORT_WORKERS", "IMPORT_RETRY_BACKOFF", "LOG_FORMAT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := config.Load(envFile, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Import.Workers)
	assert.Equal(t, time.Second, cfg.Import.RetryBackoff)

	logger := cfg.NewLogger()
	_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("IMPORT_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IMPORT_WORKERS", "0")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "IMPORT_WORKERS must be positive")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
