package importjob

import (
	"context"
	"io"

	"github.com/mohammadpnp/book-import/internal/domain/book"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

// MetadataLookup resolves one canonical ISBN. Every error, including
// book.ErrBookNotFound and timeouts, is retried the same way.
type MetadataLookup interface {
	Lookup(ctx context.Context, isbn string) (book.Book, error)
}

// CatalogWriter stores the books resolved by one chunk.
type CatalogWriter interface {
	SaveBooks(ctx context.Context, jobID string, books []book.Book) error
}

// CompletionNotifier is told about every job that reaches Completed.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, job domain.ImportJob) error
}

// ProgressPublisher receives a snapshot after every change of a job record.
type ProgressPublisher interface {
	Publish(snapshot domain.Snapshot)
}

type ImportSource interface {
	Open(ctx context.Context, sourcePath string) (io.ReadCloser, error)
}

// UploadParser turns an uploaded file into normalized identifiers. Formats it
// cannot read are reported wrapped in ErrUnsupportedFile.
type UploadParser func(fileName string, r io.Reader, maxCount int) ([]string, error)

type noopNotifier struct{}

func (noopNotifier) NotifyCompleted(context.Context, domain.ImportJob) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(domain.Snapshot) {}
