package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	"github.com/mohammadpnp/book-import/internal/config"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
	"github.com/mohammadpnp/book-import/internal/infrastructure/db"
	"github.com/mohammadpnp/book-import/internal/infrastructure/file"
	"github.com/mohammadpnp/book-import/internal/infrastructure/lookup"
	"github.com/mohammadpnp/book-import/internal/infrastructure/notify"
	"github.com/mohammadpnp/book-import/internal/infrastructure/progress"
	"github.com/mohammadpnp/book-import/internal/infrastructure/repository"
)

// Container holds the wired service graph.
type Container struct {
	Config   *config.Config
	Log      *logrus.Logger
	Registry *prometheus.Registry

	Jobs         domain.Repository
	Broker       *progress.Broker
	Orchestrator *app.Orchestrator

	StartImport app.StartIsbnImport
	GetProgress app.GetImportProgress
	ListActive  app.ListActiveImports

	closers []func()
}

// Options lets callers replace collaborators, mostly for the CLI and tests.
type Options struct {
	Lookup   app.MetadataLookup
	Notifier app.CompletionNotifier
}

func NewContainer(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
		Broker:   progress.NewBroker(progress.DefaultBuffer),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var catalog app.CatalogWriter
	switch cfg.Import.Store {
	case config.StoreMemory:
		c.Jobs = repository.NewMemoryImportJobRepository()
	default:
		jobs, books, err := c.openPostgres(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Jobs, catalog = jobs, books
	}

	metadata := opts.Lookup
	if metadata == nil {
		var err error
		if metadata, err = c.newLookup(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		var err error
		if notifier, err = c.newNotifier(); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Orchestrator = app.NewOrchestrator(c.Jobs, metadata, app.OrchestratorConfig{
		Workers:         cfg.Import.Workers,
		ChunkSize:       cfg.Import.ChunkSize,
		QueueSize:       cfg.Import.QueueSize,
		PollInterval:    cfg.Import.PollInterval,
		LookupTimeout:   cfg.Import.LookupTimeout,
		RetryBackoff:    cfg.Import.RetryBackoff,
		MaxRetryBackoff: cfg.Import.MaxRetryBackoff,
		MergeTimeout:    cfg.Import.MergeTimeout,
		StaleAfter:      cfg.Import.StaleAfter,
	},
		app.WithCatalog(catalog),
		app.WithNotifier(notifier),
		app.WithPublisher(c.Broker),
		app.WithLogger(log.WithField("component", "orchestrator")),
		app.WithMetricsRegisterer(c.Registry),
	)

	defaultRetries := cfg.Import.MaxRetries
	c.StartImport = app.NewStartIsbnImport(
		c.Jobs,
		file.NewLocalSource(cfg.Import.BaseDir),
		ParseUpload,
		c.Orchestrator,
		app.StartIsbnImportConfig{
			MaxCount:          cfg.Import.MaxCount,
			DefaultMaxRetries: &defaultRetries,
		},
	)
	c.GetProgress = app.NewGetImportProgress(c.Jobs)
	c.ListActive = app.NewListActiveImports(c.Jobs)

	return c, nil
}

func (c *Container) openPostgres(ctx context.Context) (*repository.ImportJobRepository, *repository.BookCatalogRepository, error) {
	gdb, err := gorm.Open(postgres.Open(c.Config.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database handle: %w", err)
	}
	c.closers = append(c.closers, func() { _ = sqlDB.Close() })

	if err := db.Migrate(ctx, sqlDB); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, c.Config.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create pgx pool: %w", err)
	}
	c.closers = append(c.closers, pool.Close)

	return repository.NewImportJobRepository(gdb), repository.NewBookCatalogRepository(pool), nil
}

func (c *Container) newLookup(ctx context.Context) (app.MetadataLookup, error) {
	client, err := lookup.NewOpenLibraryClient(c.Config.Lookup.OpenLibraryURL, &http.Client{
		Timeout: c.Config.Import.LookupTimeout + time.Second,
	})
	if err != nil {
		return nil, err
	}
	if c.Config.Lookup.RedisURL == "" {
		return client, nil
	}

	redisOpts, err := redis.ParseURL(c.Config.Lookup.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	c.closers = append(c.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		c.Log.WithError(err).Warn("redis unreachable, lookups will not be cached")
		return client, nil
	}

	cache := lookup.NewRedisCache(rdb, "isbn-import:")
	return lookup.NewCachedLookup(client, cache, c.Config.Lookup.CacheTTL, c.Log.WithField("component", "lookup")), nil
}

func (c *Container) newNotifier() (app.CompletionNotifier, error) {
	log := c.Log.WithField("component", "notify")
	if c.Config.SMTP.Host == "" {
		return notify.NewLogNotifier(log), nil
	}

	recipients, err := notify.ParseRecipients(c.Config.SMTP.Recipients)
	if err != nil {
		return nil, fmt.Errorf("parse NOTIFY_RECIPIENTS: %w", err)
	}
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     c.Config.SMTP.Host,
		Port:     c.Config.SMTP.Port,
		Username: c.Config.SMTP.Username,
		Password: c.Config.SMTP.Password,
		From:     c.Config.SMTP.From,
	})
	return notify.NewMailNotifier(recipients, mailer, log), nil
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// ParseUpload reads an identifier file and reports unreadable formats as
// app.ErrUnsupportedFile.
func ParseUpload(fileName string, r io.Reader, maxCount int) ([]string, error) {
	isbns, err := file.ParseUpload(fileName, r, maxCount)
	if errors.Is(err, file.ErrUnsupportedFormat) || errors.Is(err, file.ErrUnreadableSpreadsheet) {
		return nil, fmt.Errorf("%w: %v", app.ErrUnsupportedFile, err)
	}
	return isbns, err
}
