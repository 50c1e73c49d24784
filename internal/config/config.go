// Package config reads service settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type ImportOptions struct {
	Store           string        `env:"IMPORT_STORE" envDefault:"postgres"`
	BaseDir         string        `env:"IMPORT_BASE_DIR" envDefault:"."`
	Workers         int           `env:"IMPORT_WORKERS" envDefault:"8"`
	ChunkSize       int           `env:"IMPORT_CHUNK_SIZE" envDefault:"25"`
	QueueSize       int           `env:"IMPORT_QUEUE_SIZE" envDefault:"0"`
	MaxRetries      int           `env:"IMPORT_MAX_RETRIES" envDefault:"3"`
	MaxCount        int           `env:"IMPORT_MAX_COUNT" envDefault:"10000"`
	LookupTimeout   time.Duration `env:"IMPORT_LOOKUP_TIMEOUT" envDefault:"10s"`
	RetryBackoff    time.Duration `env:"IMPORT_RETRY_BACKOFF" envDefault:"200ms"`
	MaxRetryBackoff time.Duration `env:"IMPORT_MAX_RETRY_BACKOFF" envDefault:"5s"`
	MergeTimeout    time.Duration `env:"IMPORT_MERGE_TIMEOUT" envDefault:"5s"`
	PollInterval    time.Duration `env:"IMPORT_POLL_INTERVAL" envDefault:"2s"`
	ShutdownTimeout time.Duration `env:"IMPORT_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	StaleAfter      time.Duration `env:"IMPORT_STALE_AFTER" envDefault:"5m"`
}

type LookupOptions struct {
	OpenLibraryURL string        `env:"OPENLIBRARY_URL" envDefault:"https://openlibrary.org"`
	RedisURL       string        `env:"REDIS_URL"`
	CacheTTL       time.Duration `env:"LOOKUP_CACHE_TTL" envDefault:"24h"`
}

type SMTPOptions struct {
	Host       string `env:"SMTP_HOST"`
	Port       int    `env:"SMTP_PORT" envDefault:"587"`
	Username   string `env:"SMTP_USERNAME"`
	Password   string `env:"SMTP_PASSWORD"`
	From       string `env:"SMTP_FROM" envDefault:"imports@localhost"`
	Recipients string `env:"NOTIFY_RECIPIENTS"`
}

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	MaxUploadSize string `env:"MAX_UPLOAD_SIZE" envDefault:"10M"`

	Import ImportOptions
	Lookup LookupOptions
	SMTP   SMTPOptions
}

// Load reads the given env files (missing ones are skipped) and parses the
// environment into a validated Config.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Import.Store {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when IMPORT_STORE=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("IMPORT_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Import.Store))
	}
	if c.Import.Workers <= 0 {
		errs = append(errs, errors.New("IMPORT_WORKERS must be positive"))
	}
	if c.Import.ChunkSize <= 0 {
		errs = append(errs, errors.New("IMPORT_CHUNK_SIZE must be positive"))
	}
	if c.Import.MaxRetries < 0 {
		errs = append(errs, errors.New("IMPORT_MAX_RETRIES must not be negative"))
	}
	if c.Import.StaleAfter < 0 {
		errs = append(errs, errors.New("IMPORT_STALE_AFTER must not be negative"))
	}
	if c.Import.MaxCount < 0 {
		errs = append(errs, errors.New("IMPORT_MAX_COUNT must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
