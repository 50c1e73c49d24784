package importjob

import "errors"

var (
	ErrJobNotFound       = errors.New("import job not found")
	ErrNoIdentifiers     = errors.New("no valid identifiers")
	ErrInvalidScope      = errors.New("invalid library scope")
	ErrInvalidMaxRetries = errors.New("max retries must not be negative")
	ErrInvalidChunkSize  = errors.New("chunk size must be positive")
	ErrJobNotPending     = errors.New("import job is not pending")
	ErrJobNotProcessing  = errors.New("import job is not processing")
	ErrJobTerminal       = errors.New("import job already finished")
	ErrInvalidTally      = errors.New("invalid chunk tally")
	ErrChunkOverflow     = errors.New("processed chunks would exceed total chunks")
	ErrCountOverflow     = errors.New("processed identifiers would exceed total identifiers")
	ErrChunksOutstanding = errors.New("import job still has chunks")
	ErrJobNotStale       = errors.New("import job is not stale")
)
