package importjob

import (
	"context"
	"time"
)

// Repository persists import jobs. MarkProcessing, MergeChunk, Heartbeat and
// Fail are atomic read-modify-write operations serialized per job, refresh
// UpdatedAt and return the record as stored after the update.
type Repository interface {
	Create(ctx context.Context, job ImportJob) error
	Get(ctx context.Context, jobID string) (ImportJob, error)
	ListActive(ctx context.Context, libraryID string) ([]ImportJob, error)
	ListPending(ctx context.Context, limit int) ([]ImportJob, error)
	MarkProcessing(ctx context.Context, jobID string, chunkSize int) (ImportJob, error)
	MergeChunk(ctx context.Context, jobID string, tally ChunkTally) (ImportJob, error)
	CompleteEmpty(ctx context.Context, jobID string) (ImportJob, error)
	Fail(ctx context.Context, jobID string, reason string) (ImportJob, error)
	Heartbeat(ctx context.Context, jobID string) (ImportJob, error)
	// FailStale fails every processing job not updated since cutoff and
	// returns the jobs it failed.
	FailStale(ctx context.Context, cutoff time.Time, reason string) ([]ImportJob, error)
}
