package importjob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type GetImportProgressInput struct {
	JobID string
	// LibraryID, when set, hides jobs owned by other libraries.
	LibraryID string
}

type GetImportProgress interface {
	Execute(ctx context.Context, in GetImportProgressInput) (domain.Snapshot, error)
}

type importJobReader interface {
	Get(ctx context.Context, jobID string) (domain.ImportJob, error)
}

type getImportProgress struct {
	repo importJobReader
}

func NewGetImportProgress(repo importJobReader) GetImportProgress {
	return &getImportProgress{repo: repo}
}

func (uc *getImportProgress) Execute(ctx context.Context, in GetImportProgressInput) (domain.Snapshot, error) {
	if _, err := uuid.Parse(in.JobID); err != nil {
		return domain.Snapshot{}, ErrInvalidJobID
	}

	job, err := uc.repo.Get(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return domain.Snapshot{}, ErrImportNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("%w: %v", ErrGetImportProgress, err)
	}
	if libraryID := strings.TrimSpace(in.LibraryID); libraryID != "" && job.LibraryID != libraryID {
		return domain.Snapshot{}, ErrImportNotFound
	}

	return job.Snapshot(), nil
}
