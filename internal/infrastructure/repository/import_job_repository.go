package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
	"github.com/mohammadpnp/book-import/internal/infrastructure/db/models"
)

// ImportJobRepository stores jobs in Postgres. Mutations lock the row with
// SELECT ... FOR UPDATE, so concurrent merges of one job are serialized by
// the database.
type ImportJobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db, now: time.Now}
}

func (r *ImportJobRepository) Create(ctx context.Context, job domain.ImportJob) error {
	row := toModel(job)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

func (r *ImportJobRepository) Get(ctx context.Context, jobID string) (domain.ImportJob, error) {
	var row models.ImportJob
	err := r.db.WithContext(ctx).Where("id = ?", jobID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ImportJob{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}
	return toDomain(row), nil
}

func (r *ImportJobRepository) ListActive(ctx context.Context, libraryID string) ([]domain.ImportJob, error) {
	var rows []models.ImportJob
	err := r.db.WithContext(ctx).
		Where("library_id = ? AND status IN ?", libraryID, []string{string(domain.StatusPending), string(domain.StatusProcessing)}).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active import jobs: %w", err)
	}
	return toDomainList(rows), nil
}

func (r *ImportJobRepository) ListPending(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusPending)).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.ImportJob
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending import jobs: %w", err)
	}
	return toDomainList(rows), nil
}

func (r *ImportJobRepository) MarkProcessing(ctx context.Context, jobID string, chunkSize int) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Start(chunkSize)
	})
}

func (r *ImportJobRepository) MergeChunk(ctx context.Context, jobID string, tally domain.ChunkTally) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.ApplyChunk(tally, r.now().UTC())
	})
}

func (r *ImportJobRepository) CompleteEmpty(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.CompleteEmpty(r.now().UTC())
	})
}

func (r *ImportJobRepository) Fail(ctx context.Context, jobID string, reason string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Fail(reason, r.now().UTC())
	})
}

func (r *ImportJobRepository) Heartbeat(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return r.update(ctx, jobID, func(j *domain.ImportJob) error {
		return j.Heartbeat(r.now().UTC())
	})
}

// FailStale locks the stale rows it can get; rows another transaction holds
// are being updated right now and so are not stale.
func (r *ImportJobRepository) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]domain.ImportJob, error) {
	var failed []domain.ImportJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ImportJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND updated_at < ?", string(domain.StatusProcessing), cutoff).
			Order("updated_at ASC").
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("lock stale import jobs: %w", err)
		}

		now := r.now().UTC()
		for _, row := range rows {
			job := toDomain(row)
			if err := job.Fail(reason, now); err != nil {
				return err
			}
			job.UpdatedAt = now
			next := toModel(job)
			if err := tx.Save(&next).Error; err != nil {
				return fmt.Errorf("fail stale import job %s: %w", job.ID, err)
			}
			failed = append(failed, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (r *ImportJobRepository) update(ctx context.Context, jobID string, fn func(*domain.ImportJob) error) (domain.ImportJob, error) {
	var updated domain.ImportJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ImportJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", jobID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("lock import job: %w", err)
		}

		job := toDomain(row)
		if err := fn(&job); err != nil {
			return err
		}

		job.UpdatedAt = r.now().UTC()
		next := toModel(job)
		if err := tx.Save(&next).Error; err != nil {
			return fmt.Errorf("save import job: %w", err)
		}

		updated = job
		return nil
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	return updated, nil
}

func toModel(job domain.ImportJob) models.ImportJob {
	var errorMessage *string
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		errorMessage = &msg
	}
	failed := job.FailedIsbns
	if failed == nil {
		failed = []string{}
	}

	return models.ImportJob{
		ID:              job.ID,
		LibraryID:       job.LibraryID,
		FileName:        job.FileName,
		Status:          string(job.Status),
		Isbns:           job.Isbns,
		TotalIsbns:      job.TotalIsbns,
		TotalChunks:     job.TotalChunks,
		ProcessedChunks: job.ProcessedChunks,
		SuccessCount:    job.SuccessCount,
		FailedCount:     job.FailedCount,
		FailedIsbns:     failed,
		MaxRetries:      job.MaxRetries,
		ErrorMessage:    errorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
}

func toDomain(row models.ImportJob) domain.ImportJob {
	job := domain.ImportJob{
		ID:              row.ID,
		LibraryID:       row.LibraryID,
		FileName:        row.FileName,
		Status:          domain.Status(row.Status),
		Isbns:           row.Isbns,
		TotalIsbns:      row.TotalIsbns,
		TotalChunks:     row.TotalChunks,
		ProcessedChunks: row.ProcessedChunks,
		SuccessCount:    row.SuccessCount,
		FailedCount:     row.FailedCount,
		FailedIsbns:     row.FailedIsbns,
		MaxRetries:      row.MaxRetries,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		CompletedAt:     row.CompletedAt,
	}
	if row.ErrorMessage != nil {
		job.ErrorMessage = *row.ErrorMessage
	}
	if job.FailedIsbns == nil {
		job.FailedIsbns = []string{}
	}
	return job
}

func toDomainList(rows []models.ImportJob) []domain.ImportJob {
	jobs := make([]domain.ImportJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, toDomain(row))
	}
	return jobs
}
