package notify

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

// maxListedFailures caps the identifiers written into one message body.
const maxListedFailures = 200

func Summary(job domain.ImportJob) (subject string, body string) {
	subject = fmt.Sprintf("ISBN import finished: %s", job.FileName)

	completedAt := "unknown"
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your ISBN import has finished.\n\n")
	fmt.Fprintf(&b, "File:        %s\n", job.FileName)
	fmt.Fprintf(&b, "Job:         %s\n", job.ID)
	fmt.Fprintf(&b, "Total ISBNs: %d\n", job.TotalIsbns)
	fmt.Fprintf(&b, "Imported:    %d\n", job.SuccessCount)
	fmt.Fprintf(&b, "Failed:      %d\n", job.FailedCount)
	fmt.Fprintf(&b, "Completed:   %s\n", completedAt)

	if len(job.FailedIsbns) > 0 {
		b.WriteString("\nISBNs that could not be imported:\n")
		for i, isbn := range job.FailedIsbns {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  ... and %d more\n", len(job.FailedIsbns)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "  %s\n", isbn)
		}
	}
	return subject, b.String()
}
