package importjob_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/book-import/internal/domain/importjob"
)

var (
	testScope = importjob.Scope{LibraryID: "6f1c1b7a-1d2e-4c6b-9a51-8f0a7f3b2c10"}
	testNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func isbnList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("978000000%04d", i)
	}
	return out
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := importjob.New("job-1", importjob.Scope{LibraryID: "nope"}, "f.csv", isbnList(1), 3, testNow)
	require.ErrorIs(t, err, importjob.ErrInvalidScope)

	_, err = importjob.New("job-1", testScope, "f.csv", nil, 3, testNow)
	require.ErrorIs(t, err, importjob.ErrNoIdentifiers)

	_, err = importjob.New("job-1", testScope, "f.csv", isbnList(1), -1, testNow)
	require.ErrorIs(t, err, importjob.ErrInvalidMaxRetries)
}

func TestNewStoresTrimmedLibraryID(t *testing.T) {
	t.Parallel()

	padded := importjob.Scope{LibraryID: " " + testScope.LibraryID + "\n"}
	job, err := importjob.New("job-1", padded, "f.csv", isbnList(1), 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, testScope.LibraryID, job.LibraryID)
}

func TestStartFixesChunkCount(t *testing.T) {
	t.Parallel()

	job, err := importjob.New("job-1", testScope, "f.csv", isbnList(10), 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusPending, job.Status)

	require.NoError(t, job.Start(4))
	assert.Equal(t, importjob.StatusProcessing, job.Status)
	assert.Equal(t, 3, job.TotalChunks)

	require.ErrorIs(t, job.Start(4), importjob.ErrJobNotPending)
}

func TestApplyChunkCompletesInAnyOrder(t *testing.T) {
	t.Parallel()

	tallies := []importjob.ChunkTally{
		{SuccessCount: 3, FailedCount: 1, FailedIsbns: []string{"9780000000001"}},
		{SuccessCount: 4},
		{SuccessCount: 2, FailedCount: 1, FailedIsbns: []string{"9780000000002"}},
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, order := range orders {
		job, err := importjob.New("job-1", testScope, "f.csv", isbnList(11), 3, testNow)
		require.NoError(t, err)
		require.NoError(t, job.Start(4))

		for i, idx := range order {
			require.NoError(t, job.ApplyChunk(tallies[idx], testNow))
			assert.LessOrEqual(t, job.ProcessedChunks, job.TotalChunks)
			assert.LessOrEqual(t, job.SuccessCount+job.FailedCount, job.TotalIsbns)
			if i < len(order)-1 {
				assert.Equal(t, importjob.StatusProcessing, job.Status)
				assert.Nil(t, job.CompletedAt)
			}
		}

		assert.Equal(t, 9, job.SuccessCount)
		assert.Equal(t, 2, job.FailedCount)
		assert.Equal(t, 3, job.ProcessedChunks)
		assert.Len(t, job.FailedIsbns, 2)
		assert.Equal(t, importjob.StatusCompleted, job.Status)
		require.NotNil(t, job.CompletedAt)
	}
}

func TestApplyChunkGuardsInvariants(t *testing.T) {
	t.Parallel()

	job, err := importjob.New("job-1", testScope, "f.csv", isbnList(2), 3, testNow)
	require.NoError(t, err)

	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: 1}, testNow), importjob.ErrJobNotProcessing)

	require.NoError(t, job.Start(1))
	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: -1}, testNow), importjob.ErrInvalidTally)
	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{FailedCount: 1}, testNow), importjob.ErrInvalidTally)
	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: 3}, testNow), importjob.ErrCountOverflow)

	require.NoError(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: 1}, testNow))
	require.NoError(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: 1}, testNow))
	assert.Equal(t, importjob.StatusCompleted, job.Status)

	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{}, testNow), importjob.ErrJobNotProcessing)
}

func TestApplyChunkRejectsExtraChunk(t *testing.T) {
	t.Parallel()

	job := importjob.ImportJob{Status: importjob.StatusProcessing, TotalIsbns: 5, TotalChunks: 1, ProcessedChunks: 1}
	require.ErrorIs(t, job.ApplyChunk(importjob.ChunkTally{}, testNow), importjob.ErrChunkOverflow)
}

func TestFailIsTerminal(t *testing.T) {
	t.Parallel()

	job, err := importjob.New("job-1", testScope, "f.csv", isbnList(3), 3, testNow)
	require.NoError(t, err)
	require.NoError(t, job.Start(2))
	require.NoError(t, job.ApplyChunk(importjob.ChunkTally{SuccessCount: 2}, testNow))

	require.NoError(t, job.Fail("queue closed", testNow))
	assert.Equal(t, importjob.StatusFailed, job.Status)
	assert.Equal(t, "queue closed", job.ErrorMessage)
	require.NotNil(t, job.CompletedAt)

	require.ErrorIs(t, job.Fail("again", testNow), importjob.ErrJobTerminal)
	require.ErrorIs(t, job.Start(2), importjob.ErrJobNotPending)

	snap := job.Snapshot()
	assert.Equal(t, 2, snap.SuccessCount)
	assert.Equal(t, 50, snap.ProgressPercent)
	assert.Equal(t, "queue closed", snap.ErrorMessage)
}

func TestCompleteEmpty(t *testing.T) {
	t.Parallel()

	job := importjob.ImportJob{Status: importjob.StatusProcessing}
	require.NoError(t, job.CompleteEmpty(testNow))
	assert.Equal(t, importjob.StatusCompleted, job.Status)

	busy := importjob.ImportJob{Status: importjob.StatusProcessing, TotalChunks: 1}
	require.ErrorIs(t, busy.CompleteEmpty(testNow), importjob.ErrChunksOutstanding)
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	t.Parallel()

	job, err := importjob.New("job-1", testScope, "f.csv", isbnList(2), 3, testNow)
	require.NoError(t, err)

	clone := job.Clone()
	clone.Isbns[0] = "changed"
	clone.FailedIsbns = append(clone.FailedIsbns, "x")

	assert.NotEqual(t, "changed", job.Isbns[0])
	assert.Empty(t, job.FailedIsbns)
}

func TestHeartbeatAndStaleness(t *testing.T) {
	t.Parallel()

	job, err := importjob.New("job-1", testScope, "f.csv", isbnList(2), 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow, job.UpdatedAt)

	later := testNow.Add(time.Hour)
	assert.False(t, job.IsStale(later), "pending jobs are picked up, never stale")
	require.ErrorIs(t, job.Heartbeat(later), importjob.ErrJobNotProcessing)

	require.NoError(t, job.Start(1))
	assert.True(t, job.IsStale(later))

	require.NoError(t, job.Heartbeat(later))
	assert.False(t, job.IsStale(later))
	assert.True(t, job.IsStale(later.Add(time.Nanosecond)))

	require.NoError(t, job.Fail("lost", later))
	assert.False(t, job.IsStale(later.Add(time.Hour)))
}
