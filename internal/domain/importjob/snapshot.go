package importjob

import "time"

// Snapshot is the read projection of a job served to pollers and pushed to
// subscribers after every merge.
type Snapshot struct {
	JobID           string     `json:"job_id"`
	LibraryID       string     `json:"library_id"`
	FileName        string     `json:"file_name"`
	Status          Status     `json:"status"`
	ProcessedChunks int        `json:"processed_chunks"`
	TotalChunks     int        `json:"total_chunks"`
	SuccessCount    int        `json:"success_count"`
	FailedCount     int        `json:"failed_count"`
	TotalIsbns      int        `json:"total_isbns"`
	ProgressPercent int        `json:"progress_percent"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

func (j ImportJob) Snapshot() Snapshot {
	return Snapshot{
		JobID:           j.ID,
		LibraryID:       j.LibraryID,
		FileName:        j.FileName,
		Status:          j.Status,
		ProcessedChunks: j.ProcessedChunks,
		TotalChunks:     j.TotalChunks,
		SuccessCount:    j.SuccessCount,
		FailedCount:     j.FailedCount,
		TotalIsbns:      j.TotalIsbns,
		ProgressPercent: ProgressPercent(j.ProcessedChunks, j.TotalChunks),
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
		ErrorMessage:    j.ErrorMessage,
	}
}

// Supersedes reports whether s may replace prev for a viewer. Snapshots are
// published out of merge order, so a lower ProcessedChunks is stale and
// nothing follows a terminal snapshot.
func (s Snapshot) Supersedes(prev Snapshot) bool {
	return !prev.Status.IsTerminal() && s.ProcessedChunks >= prev.ProcessedChunks
}

func ProgressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return processed * 100 / total
}
