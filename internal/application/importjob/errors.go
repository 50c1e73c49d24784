package importjob

import "errors"

var (
	ErrInvalidImportSource = errors.New("invalid import source")
	ErrUnsupportedFile     = errors.New("unsupported identifier file")
	ErrNoIdentifiers       = errors.New("file contains no valid identifiers")
	ErrInvalidLibraryID    = errors.New("invalid library id")
	ErrInvalidMaxRetries   = errors.New("invalid max retries")
	ErrCreateImportJob     = errors.New("failed to create import job")
	ErrInvalidJobID        = errors.New("invalid import job id")
	ErrImportNotFound      = errors.New("import job not found")
	ErrGetImportProgress   = errors.New("failed to get import progress")
	ErrListActiveImports   = errors.New("failed to list active imports")
	ErrOrchestratorClosed  = errors.New("import orchestrator is shut down")
)
