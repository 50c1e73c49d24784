package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	"github.com/mohammadpnp/book-import/internal/bootstrap"
	"github.com/mohammadpnp/book-import/internal/config"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type importOutput struct {
	Command    string          `json:"command"`
	DurationMS int64           `json:"duration_ms"`
	Result     domain.Snapshot `json:"result"`
}

func newImportCmd() *cobra.Command {
	var (
		libraryID  string
		store      string
		envFile    string
		maxCount   int
		maxRetries int
		timeout    time.Duration
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Run an import job for a local identifier file and print its final snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(libraryID); err != nil {
				return fmt.Errorf("invalid --library: %w", err)
			}

			cfg, err := loadConfig(envFile, store)
			if err != nil {
				return err
			}
			log := cfg.NewLogger()
			log.SetOutput(cmd.ErrOrStderr())

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			container, err := bootstrap.NewContainer(ctx, cfg, log, bootstrap.Options{})
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer container.Close()

			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			container.Orchestrator.Start(runCtx)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Import.ShutdownTimeout)
				defer cancel()
				_ = container.Orchestrator.Shutdown(shutdownCtx)
			}()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			in := app.StartIsbnImportInput{
				Scope:    domain.Scope{LibraryID: libraryID},
				FileName: filepath.Base(args[0]),
				Content:  f,
				MaxCount: maxCount,
			}
			if cmd.Flags().Changed("max-retries") {
				in.MaxRetries = &maxRetries
			}

			start := time.Now()
			started, err := container.StartImport.Execute(ctx, in)
			if err != nil {
				return err
			}

			var progress io.Writer
			if watch {
				progress = cmd.ErrOrStderr()
			}
			final, err := waitForJob(ctx, container, started.JobID, progress)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), importOutput{
				Command:    "import",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     final,
			})
		},
	}

	cmd.Flags().StringVar(&libraryID, "library", "", "library UUID that owns the import (required)")
	cmd.Flags().StringVar(&store, "store", config.StoreMemory, "job store: memory or postgres")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional env file read before the environment")
	cmd.Flags().IntVar(&maxCount, "max", 0, "stop after this many identifiers (0 = configured limit)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "per-ISBN retries (default from IMPORT_MAX_RETRIES)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 = no limit)")
	cmd.Flags().BoolVar(&watch, "watch", false, "print every progress snapshot to stderr")
	_ = cmd.MarkFlagRequired("library")
	return cmd
}

func loadConfig(envFile, store string) (*config.Config, error) {
	if store != "" {
		if err := os.Setenv("IMPORT_STORE", store); err != nil {
			return nil, err
		}
	}
	return config.Load(envFile)
}

// waitForJob blocks until the job reaches a terminal status. Pushed
// snapshots drive the wait; the ticker covers a snapshot published before
// the subscription existed.
func waitForJob(ctx context.Context, c *bootstrap.Container, jobID string, progress io.Writer) (domain.Snapshot, error) {
	sub := c.Broker.Subscribe(jobID)
	defer c.Broker.Unsubscribe(sub)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	printer := &progressPrinter{w: progress}
	for {
		snap, err := c.GetProgress.Execute(ctx, app.GetImportProgressInput{JobID: jobID})
		if err != nil {
			return domain.Snapshot{}, err
		}
		if snap.Status.IsTerminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return domain.Snapshot{}, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
		case pushed := <-sub.C:
			printer.print(pushed)
		case <-ticker.C:
		}
	}
}

// progressPrinter writes pushed snapshots, skipping stale ones.
type progressPrinter struct {
	w    io.Writer
	last domain.Snapshot
}

func (p *progressPrinter) print(snap domain.Snapshot) {
	if p.w == nil || !snap.Supersedes(p.last) {
		return
	}
	p.last = snap
	fmt.Fprintf(p.w, "%s %d/%d chunks, %d ok, %d failed\n",
		snap.Status, snap.ProcessedChunks, snap.TotalChunks, snap.SuccessCount, snap.FailedCount)
}
