package importjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mohammadpnp/book-import/internal/domain/book"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type OrchestratorConfig struct {
	Workers           int
	ChunkSize         int
	QueueSize         int
	PendingBatch      int
	PollInterval      time.Duration
	LookupTimeout     time.Duration
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
	MergeTimeout      time.Duration
	CatalogTimeout    time.Duration
	NotifyTimeout     time.Duration
	// StaleAfter is how long a processing job may go without a merge or a
	// heartbeat before the job loop fails it as lost.
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
}

func (c *OrchestratorConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = domain.DefaultChunkSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 4
	}
	if c.PendingBatch <= 0 {
		c.PendingBatch = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 10 * time.Second
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = 5 * time.Second
	}
	if c.MergeTimeout <= 0 {
		c.MergeTimeout = 5 * time.Second
	}
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = 30 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 15 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.StaleAfter {
		c.HeartbeatInterval = c.StaleAfter / 3
	}
}

type Option func(*Orchestrator)

func WithCatalog(w CatalogWriter) Option {
	return func(o *Orchestrator) { o.catalog = w }
}

func WithNotifier(n CompletionNotifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

func WithPublisher(p ProgressPublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) { o.registerer = reg }
}

// Orchestrator drives import jobs from Pending to a terminal state. Chunks
// of every job share one bounded queue drained by a fixed pool of workers.
type Orchestrator struct {
	repo      domain.Repository
	lookup    MetadataLookup
	catalog   CatalogWriter
	notifier  CompletionNotifier
	publisher ProgressPublisher
	cfg       OrchestratorConfig

	log        logrus.FieldLogger
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time

	tasks chan chunkTask
	wake  chan struct{}
	quit  chan struct{}

	mu     sync.RWMutex
	closed bool

	inflight  sync.Map
	jobs      sync.WaitGroup
	workers   sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

type chunkTask struct {
	jobID      string
	index      int
	isbns      []string
	maxRetries int
	result     chan<- chunkResult
}

type chunkResult struct {
	index int
	job   domain.ImportJob
	err   error
}

func NewOrchestrator(repo domain.Repository, lookup MetadataLookup, cfg OrchestratorConfig, opts ...Option) *Orchestrator {
	cfg.setDefaults()

	o := &Orchestrator{
		repo:      repo,
		lookup:    lookup,
		notifier:  noopNotifier{},
		publisher: noopPublisher{},
		cfg:       cfg,
		log:       logrus.StandardLogger(),
		now:       time.Now,
		tasks:     make(chan chunkTask, cfg.QueueSize),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newMetrics(o.registerer)
	return o
}

// Start launches the chunk workers and the loop that picks up pending jobs.
// The loop stops with ctx; the workers stop in Shutdown.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		for i := 0; i < o.cfg.Workers; i++ {
			o.workers.Add(1)
			go o.chunkWorker(i + 1)
		}
		go o.jobLoop(ctx)
	})
}

// Submit wakes the job loop; it never blocks.
func (o *Orchestrator) Submit(jobID string) {
	select {
	case o.wake <- struct{}{}:
		o.log.WithField("job_id", jobID).Debug("import job submitted")
	default:
	}
}

// Shutdown stops accepting chunks, lets queued and running chunks finish and
// waits for them until ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopOnce.Do(func() {
		close(o.quit)
		o.mu.Lock()
		o.closed = true
		close(o.tasks)
		o.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.jobs.Wait()
		o.workers.Wait()
	}()

	select {
	case <-ctx.Done():
		o.log.Warn("import orchestrator shutdown interrupted")
		return ctx.Err()
	case <-done:
		o.log.Info("import orchestrator drained")
		return nil
	}
}

func (o *Orchestrator) jobLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		o.failStale(ctx)
		o.processPending(ctx)

		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

// failStale fails processing jobs nobody has touched for StaleAfter, which
// is what a crashed process leaves behind. Jobs driven by a live
// orchestrator are kept fresh by its heartbeat.
func (o *Orchestrator) failStale(ctx context.Context) {
	cutoff := o.now().UTC().Add(-o.cfg.StaleAfter)
	reason := fmt.Sprintf("orchestrator lost job: no progress for %s", o.cfg.StaleAfter)

	failed, err := o.repo.FailStale(ctx, cutoff, reason)
	if err != nil && ctx.Err() == nil {
		o.log.WithError(err).Warn("fail stale import jobs failed")
	}
	for _, job := range failed {
		o.metrics.jobsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
		o.publisher.Publish(job.Snapshot())
		o.log.WithFields(logrus.Fields{
			"job_id":           job.ID,
			"processed_chunks": job.ProcessedChunks,
			"total_chunks":     job.TotalChunks,
		}).Warn("stale import job failed")
	}
}

// heartbeat keeps a processing job fresh until stop is closed.
func (o *Orchestrator) heartbeat(jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.MergeTimeout)
			_, err := o.repo.Heartbeat(ctx, jobID)
			cancel()
			if errors.Is(err, domain.ErrJobNotProcessing) {
				return
			}
			if err != nil {
				o.log.WithError(err).WithField("job_id", jobID).Warn("import job heartbeat failed")
			}
		}
	}
}

func (o *Orchestrator) processPending(ctx context.Context) {
	pending, err := o.repo.ListPending(ctx, o.cfg.PendingBatch)
	if err != nil {
		if ctx.Err() == nil {
			o.log.WithError(err).Warn("list pending import jobs failed")
		}
		return
	}

	for _, job := range pending {
		if _, running := o.inflight.LoadOrStore(job.ID, struct{}{}); running {
			continue
		}

		o.jobs.Add(1)
		go func(jobID string) {
			defer o.jobs.Done()
			defer o.inflight.Delete(jobID)

			if err := o.Process(ctx, jobID); err != nil {
				o.log.WithError(err).WithField("job_id", jobID).Error("import job failed")
			}
		}(job.ID)
	}
}

// Process runs one job to a terminal state. Jobs that are not pending are
// left alone, so repeated calls for the same job are no-ops. Cancelling ctx
// stops scheduling further chunks; chunks already queued still finish.
// The returned error is the orchestration fault that failed the job.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	log := o.log.WithField("job_id", jobID)

	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load import job: %w", err)
	}
	if job.Status != domain.StatusPending {
		log.WithField("status", job.Status).Debug("import job is not pending, skipping")
		return nil
	}

	job, err = o.repo.MarkProcessing(ctx, jobID, o.cfg.ChunkSize)
	if errors.Is(err, domain.ErrJobNotPending) {
		return nil
	}
	if err != nil {
		return o.fail(jobID, fmt.Errorf("start import job: %w", err))
	}
	o.publisher.Publish(job.Snapshot())
	log.WithFields(logrus.Fields{
		"total_isbns":  job.TotalIsbns,
		"total_chunks": job.TotalChunks,
	}).Info("import job processing")

	if job.TotalChunks == 0 {
		return o.completeEmpty(jobID)
	}

	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go o.heartbeat(jobID, stopHeartbeat)

	chunks := domain.SplitChunks(job.Isbns, o.cfg.ChunkSize)
	if len(chunks) != job.TotalChunks {
		return o.fail(jobID, fmt.Errorf("chunk plan mismatch: %d chunks for %d recorded", len(chunks), job.TotalChunks))
	}

	results := make(chan chunkResult, len(chunks))
	dispatched := 0
	var scheduleErr error
	for i, chunk := range chunks {
		err := o.dispatch(ctx, chunkTask{
			jobID:      jobID,
			index:      i,
			isbns:      chunk,
			maxRetries: job.MaxRetries,
			result:     results,
		})
		if err != nil {
			scheduleErr = fmt.Errorf("schedule chunk %d of %d: %w", i+1, len(chunks), err)
			break
		}
		dispatched++
	}

	var chunkErr error
	for i := 0; i < dispatched; i++ {
		res := <-results
		if res.err != nil && chunkErr == nil {
			chunkErr = res.err
		}
	}

	if scheduleErr != nil {
		return o.fail(jobID, scheduleErr)
	}
	if chunkErr != nil {
		return o.fail(jobID, chunkErr)
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, task chunkTask) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrOrchestratorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case o.tasks <- task:
		o.metrics.queuedChunks.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.quit:
		return ErrOrchestratorClosed
	}
}

func (o *Orchestrator) chunkWorker(workerID int) {
	defer o.workers.Done()
	log := o.log.WithField("worker_id", workerID)
	log.Debug("chunk worker started")

	for task := range o.tasks {
		o.metrics.queuedChunks.Dec()
		task.result <- o.runChunk(task)
	}

	log.Debug("chunk worker stopped")
}

// runChunk resolves every identifier of one chunk and merges the tally.
// It runs detached from the caller's cancellation; every wait inside is
// bounded by its own timeout.
func (o *Orchestrator) runChunk(task chunkTask) (res chunkResult) {
	started := time.Now()
	o.metrics.activeChunkRuns.Inc()
	defer o.metrics.activeChunkRuns.Dec()

	res.index = task.index
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("chunk %d worker panic: %v", task.index+1, r)
			o.metrics.observeChunk("panic", started)
		}
	}()

	log := o.log.WithFields(logrus.Fields{"job_id": task.jobID, "chunk": task.index + 1})

	outcomes := o.resolveChunk(task)
	o.saveResolved(task.jobID, outcomes, log)
	tally := tallyOf(outcomes)

	mergeCtx, cancel := context.WithTimeout(context.Background(), o.cfg.MergeTimeout)
	job, err := o.repo.MergeChunk(mergeCtx, task.jobID, tally)
	cancel()
	if err != nil {
		o.metrics.observeChunk("merge_error", started)
		res.err = fmt.Errorf("merge chunk %d: %w", task.index+1, err)
		return res
	}

	o.metrics.observeChunk("merged", started)
	o.metrics.identifiers.WithLabelValues("resolved").Add(float64(tally.SuccessCount))
	o.metrics.identifiers.WithLabelValues("failed").Add(float64(tally.FailedCount))
	log.WithFields(logrus.Fields{
		"success":          tally.SuccessCount,
		"failed":           tally.FailedCount,
		"processed_chunks": job.ProcessedChunks,
		"total_chunks":     job.TotalChunks,
	}).Debug("chunk merged")

	o.publisher.Publish(job.Snapshot())
	if job.Status == domain.StatusCompleted {
		o.onCompleted(job)
	}

	res.job = job
	return res
}

type itemOutcome struct {
	isbn string
	book book.Book
	ok   bool
}

func (o *Orchestrator) resolveChunk(task chunkTask) []itemOutcome {
	outcomes := make([]itemOutcome, 0, len(task.isbns))
	for _, id := range task.isbns {
		meta, err := o.resolve(id, task.maxRetries)
		if err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"job_id": task.jobID,
				"isbn":   id,
			}).Debug("identifier exhausted retries")
			outcomes = append(outcomes, itemOutcome{isbn: id})
			continue
		}
		if meta.ISBN13 == "" {
			meta.ISBN13 = id
		}
		outcomes = append(outcomes, itemOutcome{isbn: id, book: meta, ok: true})
	}
	return outcomes
}

// resolve calls the lookup at most maxRetries+1 times.
func (o *Orchestrator) resolve(isbn string, maxRetries int) (book.Book, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			sleepWithContext(context.Background(), retryDelay(attempt, o.cfg.RetryBackoff, o.cfg.MaxRetryBackoff))
		}

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.LookupTimeout)
		meta, err := o.lookup.Lookup(ctx, isbn)
		cancel()
		if err == nil {
			o.metrics.lookupAttempts.WithLabelValues("success").Inc()
			return meta, nil
		}

		o.metrics.lookupAttempts.WithLabelValues(lookupFailureLabel(err)).Inc()
		lastErr = err
	}
	return book.Book{}, fmt.Errorf("lookup %s after %d attempts: %w", isbn, maxRetries+1, lastErr)
}

func lookupFailureLabel(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, book.ErrBookNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// saveResolved writes resolved books to the catalog. When that fails the
// chunk's resolved identifiers count as failed.
func (o *Orchestrator) saveResolved(jobID string, outcomes []itemOutcome, log logrus.FieldLogger) {
	if o.catalog == nil {
		return
	}

	books := make([]book.Book, 0, len(outcomes))
	for _, out := range outcomes {
		if out.ok {
			books = append(books, out.book)
		}
	}
	if len(books) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CatalogTimeout)
	defer cancel()
	if err := o.catalog.SaveBooks(ctx, jobID, books); err != nil {
		log.WithError(err).WithField("books", len(books)).Warn("catalog write failed, counting chunk books as failed")
		for i := range outcomes {
			outcomes[i].ok = false
		}
	}
}

func tallyOf(outcomes []itemOutcome) domain.ChunkTally {
	tally := domain.ChunkTally{FailedIsbns: []string{}}
	for _, out := range outcomes {
		if out.ok {
			tally.SuccessCount++
			continue
		}
		tally.FailedCount++
		tally.FailedIsbns = append(tally.FailedIsbns, out.isbn)
	}
	return tally
}

func (o *Orchestrator) completeEmpty(jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.MergeTimeout)
	defer cancel()

	job, err := o.repo.CompleteEmpty(ctx, jobID)
	if err != nil {
		return o.fail(jobID, fmt.Errorf("complete empty job: %w", err))
	}
	o.publisher.Publish(job.Snapshot())
	o.onCompleted(job)
	return nil
}

// onCompleted notifies on a best-effort basis; errors are only logged.
func (o *Orchestrator) onCompleted(job domain.ImportJob) {
	o.metrics.jobsTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	log := o.log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"success": job.SuccessCount,
		"failed":  job.FailedCount,
	})
	log.Info("import job completed")

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.NotifyTimeout)
	defer cancel()
	if err := o.notifier.NotifyCompleted(ctx, job); err != nil {
		log.WithError(err).Warn("import completion notification failed")
	}
}

// fail moves the job to Failed and returns cause. A job that already
// reached a terminal state keeps it.
func (o *Orchestrator) fail(jobID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.MergeTimeout)
	defer cancel()

	job, err := o.repo.Fail(ctx, jobID, truncateReason(cause.Error()))
	if errors.Is(err, domain.ErrJobTerminal) {
		return cause
	}
	if err != nil {
		return fmt.Errorf("%v; fail update failed: %w", cause, err)
	}

	o.metrics.jobsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	o.publisher.Publish(job.Snapshot())
	return cause
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
