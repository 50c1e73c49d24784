package importjob

import (
	"strings"

	"github.com/google/uuid"
)

// Scope carries the library (and optionally the job) a call acts on. It is
// passed explicitly instead of being read from request-global state.
type Scope struct {
	LibraryID string
	JobID     string
}

func (s Scope) Validate() error {
	if _, err := uuid.Parse(strings.TrimSpace(s.LibraryID)); err != nil {
		return ErrInvalidScope
	}
	return nil
}

// Normalize trims the identifiers so stored and queried ids compare equal.
func (s Scope) Normalize() Scope {
	s.LibraryID = strings.TrimSpace(s.LibraryID)
	s.JobID = strings.TrimSpace(s.JobID)
	return s
}

func (s Scope) WithJob(jobID string) Scope {
	s.JobID = jobID
	return s
}
