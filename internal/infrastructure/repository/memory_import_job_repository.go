package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

// MemoryImportJobRepository keeps jobs in process memory. Every mutation of
// a job runs under that job's own lock, so merges for different jobs never
// contend.
type MemoryImportJobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*memoryJob
	order []string
	now   func() time.Time
}

type memoryJob struct {
	mu  sync.Mutex
	job domain.ImportJob
}

func NewMemoryImportJobRepository() *MemoryImportJobRepository {
	return &MemoryImportJobRepository{
		jobs: make(map[string]*memoryJob),
		now:  time.Now,
	}
}

func (r *MemoryImportJobRepository) Create(ctx context.Context, job domain.ImportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("import job %s already exists", job.ID)
	}
	r.jobs[job.ID] = &memoryJob{job: job.Clone()}
	r.order = append(r.order, job.ID)
	return nil
}

func (r *MemoryImportJobRepository) Get(ctx context.Context, jobID string) (domain.ImportJob, error) {
	entry, err := r.entry(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), nil
}

func (r *MemoryImportJobRepository) ListActive(ctx context.Context, libraryID string) ([]domain.ImportJob, error) {
	jobs, err := r.list(ctx, func(j domain.ImportJob) bool {
		return j.LibraryID == libraryID && !j.Status.IsTerminal()
	}, 0)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

func (r *MemoryImportJobRepository) ListPending(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	return r.list(ctx, func(j domain.ImportJob) bool {
		return j.Status == domain.StatusPending
	}, limit)
}

func (r *MemoryImportJobRepository) MarkProcessing(ctx context.Context, jobID string, chunkSize int) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Start(chunkSize)
	})
}

func (r *MemoryImportJobRepository) MergeChunk(ctx context.Context, jobID string, tally domain.ChunkTally) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.ApplyChunk(tally, r.now().UTC())
	})
}

func (r *MemoryImportJobRepository) CompleteEmpty(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.CompleteEmpty(r.now().UTC())
	})
}

func (r *MemoryImportJobRepository) Fail(ctx context.Context, jobID string, reason string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Fail(reason, r.now().UTC())
	})
}

func (r *MemoryImportJobRepository) Heartbeat(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Heartbeat(r.now().UTC())
	})
}

func (r *MemoryImportJobRepository) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]domain.ImportJob, error) {
	stale, err := r.list(ctx, func(j domain.ImportJob) bool {
		return j.IsStale(cutoff)
	}, 0)
	if err != nil {
		return nil, err
	}

	failed := make([]domain.ImportJob, 0, len(stale))
	for _, candidate := range stale {
		job, err := r.update(ctx, candidate.ID, func(j *domain.ImportJob) error {
			// Re-checked under the job lock; a merge may have landed since listing.
			if !j.IsStale(cutoff) {
				return domain.ErrJobNotStale
			}
			return j.Fail(reason, r.now().UTC())
		})
		if errors.Is(err, domain.ErrJobNotStale) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed = append(failed, job)
	}
	return failed, nil
}

// update applies fn to a copy and stores it only when fn succeeds, so a
// rejected mutation leaves the stored record unchanged.
func (r *MemoryImportJobRepository) update(ctx context.Context, jobID string, fn func(*domain.ImportJob) error) (domain.ImportJob, error) {
	entry, err := r.entry(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.job.Clone()
	if err := fn(&next); err != nil {
		return domain.ImportJob{}, err
	}
	next.UpdatedAt = r.now().UTC()
	entry.job = next
	return next.Clone(), nil
}

func (r *MemoryImportJobRepository) entry(ctx context.Context, jobID string) (*memoryJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return entry, nil
}

func (r *MemoryImportJobRepository) list(ctx context.Context, keep func(domain.ImportJob) bool, limit int) ([]domain.ImportJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entries := make([]*memoryJob, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.jobs[id])
	}
	r.mu.RUnlock()

	out := make([]domain.ImportJob, 0)
	for _, entry := range entries {
		entry.mu.Lock()
		job := entry.job.Clone()
		entry.mu.Unlock()

		if !keep(job) {
			continue
		}
		out = append(out, job)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
