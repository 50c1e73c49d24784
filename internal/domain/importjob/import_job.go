// Package importjob holds the record of one bulk ISBN import run and the
// rules every mutation of that record has to obey.
package importjob

import (
	"slices"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	DefaultMaxRetries = 3
	DefaultChunkSize  = 25
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ImportJob is the persisted state of one import. Counters only move through
// Start, ApplyChunk and Fail.
type ImportJob struct {
	ID              string
	LibraryID       string
	FileName        string
	Status          Status
	Isbns           []string
	TotalIsbns      int
	TotalChunks     int
	ProcessedChunks int
	SuccessCount    int
	FailedCount     int
	FailedIsbns     []string
	MaxRetries      int
	CreatedAt       time.Time
	// UpdatedAt is refreshed by every stored mutation and by heartbeats; a
	// processing job whose UpdatedAt stops moving has lost its orchestrator.
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// ChunkTally is the outcome of one processed chunk.
type ChunkTally struct {
	SuccessCount int
	FailedCount  int
	FailedIsbns  []string
}

// New creates a pending job for an already parsed identifier list.
func New(id string, scope Scope, fileName string, isbns []string, maxRetries int, now time.Time) (ImportJob, error) {
	scope = scope.Normalize()
	if err := scope.Validate(); err != nil {
		return ImportJob{}, err
	}
	if len(isbns) == 0 {
		return ImportJob{}, ErrNoIdentifiers
	}
	if maxRetries < 0 {
		return ImportJob{}, ErrInvalidMaxRetries
	}

	return ImportJob{
		ID:          id,
		LibraryID:   scope.LibraryID,
		FileName:    fileName,
		Status:      StatusPending,
		Isbns:       slices.Clone(isbns),
		TotalIsbns:  len(isbns),
		FailedIsbns: []string{},
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start moves a pending job to processing and fixes its chunk count.
func (j *ImportJob) Start(chunkSize int) error {
	if j.Status != StatusPending {
		return ErrJobNotPending
	}
	if chunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	j.TotalChunks = ChunkCount(j.TotalIsbns, chunkSize)
	j.Status = StatusProcessing
	return nil
}

// ApplyChunk merges one chunk tally. The merge that accounts for the last
// chunk completes the job.
func (j *ImportJob) ApplyChunk(tally ChunkTally, now time.Time) error {
	if j.Status != StatusProcessing {
		return ErrJobNotProcessing
	}
	if tally.SuccessCount < 0 || tally.FailedCount < 0 || tally.FailedCount != len(tally.FailedIsbns) {
		return ErrInvalidTally
	}
	if j.ProcessedChunks+1 > j.TotalChunks {
		return ErrChunkOverflow
	}
	if j.SuccessCount+j.FailedCount+tally.SuccessCount+tally.FailedCount > j.TotalIsbns {
		return ErrCountOverflow
	}

	j.SuccessCount += tally.SuccessCount
	j.FailedCount += tally.FailedCount
	j.FailedIsbns = append(j.FailedIsbns, tally.FailedIsbns...)
	j.ProcessedChunks++

	if j.ProcessedChunks == j.TotalChunks {
		j.complete(now)
	}
	return nil
}

// CompleteEmpty finishes a processing job that has no chunks at all.
func (j *ImportJob) CompleteEmpty(now time.Time) error {
	if j.Status != StatusProcessing {
		return ErrJobNotProcessing
	}
	if j.TotalChunks != 0 {
		return ErrChunksOutstanding
	}
	j.complete(now)
	return nil
}

// Fail records an orchestration failure. Terminal jobs are left untouched.
func (j *ImportJob) Fail(reason string, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}

	j.Status = StatusFailed
	j.ErrorMessage = reason
	j.CompletedAt = &now
	return nil
}

// Heartbeat confirms a processing job is still being driven.
func (j *ImportJob) Heartbeat(now time.Time) error {
	if j.Status != StatusProcessing {
		return ErrJobNotProcessing
	}
	j.UpdatedAt = now
	return nil
}

// IsStale reports whether a processing job has not been touched since cutoff.
func (j ImportJob) IsStale(cutoff time.Time) bool {
	return j.Status == StatusProcessing && j.UpdatedAt.Before(cutoff)
}

func (j *ImportJob) complete(now time.Time) {
	j.Status = StatusCompleted
	j.CompletedAt = &now
}

// Clone returns a deep copy so stored records never share slices with callers.
func (j ImportJob) Clone() ImportJob {
	out := j
	out.Isbns = slices.Clone(j.Isbns)
	out.FailedIsbns = slices.Clone(j.FailedIsbns)
	if out.FailedIsbns == nil {
		out.FailedIsbns = []string{}
	}
	if j.CompletedAt != nil {
		completedAt := *j.CompletedAt
		out.CompletedAt = &completedAt
	}
	return out
}
