package importjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

// StartIsbnImportInput carries either an uploaded file (Content) or a path
// under the import directory (SourcePath).
type StartIsbnImportInput struct {
	Scope      domain.Scope
	FileName   string
	Content    io.Reader
	SourcePath string
	MaxCount   int
	MaxRetries *int
}

type StartIsbnImportOutput struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	TotalIsbns int    `json:"total_isbns"`
}

type StartIsbnImport interface {
	Execute(ctx context.Context, in StartIsbnImportInput) (StartIsbnImportOutput, error)
}

type StartIsbnImportConfig struct {
	MaxCount int
	// DefaultMaxRetries applies to requests without their own budget; nil
	// means domain.DefaultMaxRetries. Zero is a valid budget.
	DefaultMaxRetries *int
	MaxRetriesLimit   int
}

type importJobCreator interface {
	Create(ctx context.Context, job domain.ImportJob) error
}

type jobSubmitter interface {
	Submit(jobID string)
}

type startIsbnImport struct {
	repo      importJobCreator
	source    ImportSource
	parse     UploadParser
	submitter jobSubmitter
	cfg       StartIsbnImportConfig
	now       func() time.Time
	newID     func() string
}

func NewStartIsbnImport(repo importJobCreator, source ImportSource, parse UploadParser, submitter jobSubmitter, cfg StartIsbnImportConfig) StartIsbnImport {
	if cfg.DefaultMaxRetries == nil || *cfg.DefaultMaxRetries < 0 {
		def := domain.DefaultMaxRetries
		cfg.DefaultMaxRetries = &def
	}
	if cfg.MaxRetriesLimit <= 0 {
		cfg.MaxRetriesLimit = 10
	}
	return &startIsbnImport{
		repo:      repo,
		source:    source,
		parse:     parse,
		submitter: submitter,
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

func (uc *startIsbnImport) Execute(ctx context.Context, in StartIsbnImportInput) (StartIsbnImportOutput, error) {
	if err := in.Scope.Validate(); err != nil {
		return StartIsbnImportOutput{}, ErrInvalidLibraryID
	}

	maxRetries := *uc.cfg.DefaultMaxRetries
	if in.MaxRetries != nil {
		if *in.MaxRetries < 0 || *in.MaxRetries > uc.cfg.MaxRetriesLimit {
			return StartIsbnImportOutput{}, ErrInvalidMaxRetries
		}
		maxRetries = *in.MaxRetries
	}

	content, fileName, closeFn, err := uc.open(ctx, in)
	if err != nil {
		return StartIsbnImportOutput{}, err
	}
	defer closeFn()

	isbns, err := uc.parse(fileName, content, uc.maxCount(in.MaxCount))
	if err != nil {
		if errors.Is(err, ErrUnsupportedFile) {
			return StartIsbnImportOutput{}, err
		}
		return StartIsbnImportOutput{}, fmt.Errorf("%w: %v", ErrInvalidImportSource, err)
	}
	if len(isbns) == 0 {
		return StartIsbnImportOutput{}, ErrNoIdentifiers
	}

	job, err := domain.New(uc.newID(), in.Scope, fileName, isbns, maxRetries, uc.now().UTC())
	if err != nil {
		return StartIsbnImportOutput{}, fmt.Errorf("%w: %v", ErrCreateImportJob, err)
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return StartIsbnImportOutput{}, fmt.Errorf("%w: %v", ErrCreateImportJob, err)
	}

	if uc.submitter != nil {
		uc.submitter.Submit(job.ID)
	}

	return StartIsbnImportOutput{
		JobID:      job.ID,
		Status:     string(job.Status),
		TotalIsbns: job.TotalIsbns,
	}, nil
}

func (uc *startIsbnImport) open(ctx context.Context, in StartIsbnImportInput) (io.Reader, string, func(), error) {
	if in.Content != nil {
		name := strings.TrimSpace(in.FileName)
		if name == "" {
			name = "upload"
		}
		return in.Content, filepath.Base(name), func() {}, nil
	}

	sourcePath := strings.TrimSpace(in.SourcePath)
	if sourcePath == "" || uc.source == nil {
		return nil, "", nil, ErrInvalidImportSource
	}

	rc, err := uc.source.Open(ctx, sourcePath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", ErrInvalidImportSource, err)
	}
	return rc, filepath.Base(sourcePath), func() { _ = rc.Close() }, nil
}

func (uc *startIsbnImport) maxCount(requested int) int {
	limit := uc.cfg.MaxCount
	if requested > 0 && (limit <= 0 || requested < limit) {
		return requested
	}
	return limit
}
