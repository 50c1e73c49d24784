package importjob_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	app "github.com/mohammadpnp/book-import/internal/application/importjob"
	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type fakeJobCreator struct {
	created   []domain.ImportJob
	returnErr error
}

func (f *fakeJobCreator) Create(_ context.Context, job domain.ImportJob) error {
	if f.returnErr != nil {
		return f.returnErr
	}
	f.created = append(f.created, job)
	return nil
}

type fakeSubmitter struct {
	submitted []string
}

func (f *fakeSubmitter) Submit(jobID string) {
	f.submitted = append(f.submitted, jobID)
}

type fakeSource struct {
	content string
	gotPath string
	err     error
}

func (f *fakeSource) Open(_ context.Context, sourcePath string) (io.ReadCloser, error) {
	f.gotPath = sourcePath
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

// lineParser treats every non-blank line as one identifier.
func lineParser(gotMax *int) app.UploadParser {
	return func(fileName string, r io.Reader, maxCount int) ([]string, error) {
		if gotMax != nil {
			*gotMax = maxCount
		}
		if strings.HasSuffix(fileName, ".pdf") {
			return nil, fmt.Errorf("%w: pdf", app.ErrUnsupportedFile)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out, nil
	}
}

func TestStartIsbnImportFromUpload(t *testing.T) {
	t.Parallel()

	repo := &fakeJobCreator{}
	submitter := &fakeSubmitter{}
	uc := app.NewStartIsbnImport(repo, nil, lineParser(nil), submitter, app.StartIsbnImportConfig{})

	libraryID := uuid.NewString()
	out, err := uc.Execute(context.Background(), app.StartIsbnImportInput{
		Scope:    domain.Scope{LibraryID: libraryID},
		FileName: "../../books.csv",
		Content:  strings.NewReader("9780262033848\n9780804429573\n"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Status != "pending" || out.TotalIsbns != 2 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one created job, got %d", len(repo.created))
	}

	job := repo.created[0]
	if job.ID != out.JobID {
		t.Fatalf("job id mismatch: %s vs %s", job.ID, out.JobID)
	}
	if job.LibraryID != libraryID || job.FileName != "books.csv" || job.MaxRetries != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(submitter.submitted) != 1 || submitter.submitted[0] != out.JobID {
		t.Fatalf("expected job to be submitted, got %v", submitter.submitted)
	}
}

func TestStartIsbnImportKeepsConfiguredZeroRetries(t *testing.T) {
	t.Parallel()

	zero := 0
	repo := &fakeJobCreator{}
	uc := app.NewStartIsbnImport(repo, nil, lineParser(nil), nil, app.StartIsbnImportConfig{DefaultMaxRetries: &zero})

	_, err := uc.Execute(context.Background(), app.StartIsbnImportInput{
		Scope:   domain.Scope{LibraryID: uuid.NewString()},
		Content: strings.NewReader("9780262033848\n"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(repo.created) != 1 || repo.created[0].MaxRetries != 0 {
		t.Fatalf("expected configured budget of 0 retries, got %+v", repo.created)
	}
}

func TestStartIsbnImportTrimsLibraryID(t *testing.T) {
	t.Parallel()

	repo := &fakeJobCreator{}
	uc := app.NewStartIsbnImport(repo, nil, lineParser(nil), nil, app.StartIsbnImportConfig{})

	libraryID := uuid.NewString()
	_, err := uc.Execute(context.Background(), app.StartIsbnImportInput{
		Scope:   domain.Scope{LibraryID: "  " + libraryID + "\t"},
		Content: strings.NewReader("9780262033848\n"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if repo.created[0].LibraryID != libraryID {
		t.Fatalf("expected trimmed library id %q, got %q", libraryID, repo.created[0].LibraryID)
	}
}

func TestStartIsbnImportFromSourcePath(t *testing.T) {
	t.Parallel()

	source := &fakeSource{content: "9780262033848\n"}
	repo := &fakeJobCreator{}
	var gotMax int
	uc := app.NewStartIsbnImport(repo, source, lineParser(&gotMax), nil, app.StartIsbnImportConfig{MaxCount: 100})

	retries := 0
	_, err := uc.Execute(context.Background(), app.StartIsbnImportInput{
		Scope:      domain.Scope{LibraryID: uuid.NewString()},
		SourcePath: "incoming/isbns.txt",
		MaxCount:   500,
		MaxRetries: &retries,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if source.gotPath != "incoming/isbns.txt" {
		t.Fatalf("unexpected source path: %s", source.gotPath)
	}
	if gotMax != 100 {
		t.Fatalf("expected configured cap to win, got %d", gotMax)
	}
	if repo.created[0].FileName != "isbns.txt" || repo.created[0].MaxRetries != 0 {
		t.Fatalf("unexpected job: %+v", repo.created[0])
	}
}

func TestStartIsbnImportErrors(t *testing.T) {
	t.Parallel()

	validScope := domain.Scope{LibraryID: uuid.NewString()}
	tooMany := 11
	negative := -1

	cases := []struct {
		name    string
		repo    *fakeJobCreator
		source  *fakeSource
		in      app.StartIsbnImportInput
		wantErr error
	}{
		{
			name:    "invalid library",
			in:      app.StartIsbnImportInput{Scope: domain.Scope{LibraryID: "lib-1"}, Content: strings.NewReader("x")},
			wantErr: app.ErrInvalidLibraryID,
		},
		{
			name:    "retries above limit",
			in:      app.StartIsbnImportInput{Scope: validScope, Content: strings.NewReader("x"), MaxRetries: &tooMany},
			wantErr: app.ErrInvalidMaxRetries,
		},
		{
			name:    "negative retries",
			in:      app.StartIsbnImportInput{Scope: validScope, Content: strings.NewReader("x"), MaxRetries: &negative},
			wantErr: app.ErrInvalidMaxRetries,
		},
		{
			name:    "no source",
			in:      app.StartIsbnImportInput{Scope: validScope},
			wantErr: app.ErrInvalidImportSource,
		},
		{
			name:    "source open fails",
			source:  &fakeSource{err: errors.New("outside base dir")},
			in:      app.StartIsbnImportInput{Scope: validScope, SourcePath: "../etc/passwd"},
			wantErr: app.ErrInvalidImportSource,
		},
		{
			name:    "unsupported file",
			in:      app.StartIsbnImportInput{Scope: validScope, FileName: "books.pdf", Content: strings.NewReader("%PDF")},
			wantErr: app.ErrUnsupportedFile,
		},
		{
			name:    "no identifiers",
			in:      app.StartIsbnImportInput{Scope: validScope, FileName: "empty.csv", Content: strings.NewReader("\n\n")},
			wantErr: app.ErrNoIdentifiers,
		},
		{
			name:    "create fails",
			repo:    &fakeJobCreator{returnErr: errors.New("db down")},
			in:      app.StartIsbnImportInput{Scope: validScope, Content: strings.NewReader("9780262033848")},
			wantErr: app.ErrCreateImportJob,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := tc.repo
			if repo == nil {
				repo = &fakeJobCreator{}
			}
			var source app.ImportSource
			if tc.source != nil {
				source = tc.source
			}
			uc := app.NewStartIsbnImport(repo, source, lineParser(nil), nil, app.StartIsbnImportConfig{MaxRetriesLimit: 10})

			_, err := uc.Execute(context.Background(), tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(repo.created) != 0 {
				t.Fatal("expected no job to be created")
			}
		})
	}
}
