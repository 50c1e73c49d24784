package importjob

import (
	"context"
	"fmt"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type ListActiveImports interface {
	Execute(ctx context.Context, scope domain.Scope) ([]domain.Snapshot, error)
}

type activeImportLister interface {
	ListActive(ctx context.Context, libraryID string) ([]domain.ImportJob, error)
}

type listActiveImports struct {
	repo activeImportLister
}

func NewListActiveImports(repo activeImportLister) ListActiveImports {
	return &listActiveImports{repo: repo}
}

func (uc *listActiveImports) Execute(ctx context.Context, scope domain.Scope) ([]domain.Snapshot, error) {
	scope = scope.Normalize()
	if err := scope.Validate(); err != nil {
		return nil, ErrInvalidLibraryID
	}

	jobs, err := uc.repo.ListActive(ctx, scope.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListActiveImports, err)
	}

	snapshots := make([]domain.Snapshot, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		snapshots = append(snapshots, job.Snapshot())
	}
	return snapshots, nil
}
