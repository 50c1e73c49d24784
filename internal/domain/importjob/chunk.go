package importjob

// ChunkCount returns ceil(total / size).
func ChunkCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// SplitChunks partitions isbns into disjoint, order preserving slices of at
// most size elements. The returned slices share the backing array of isbns.
func SplitChunks(isbns []string, size int) [][]string {
	if size <= 0 || len(isbns) == 0 {
		return nil
	}

	chunks := make([][]string, 0, ChunkCount(len(isbns), size))
	for start := 0; start < len(isbns); start += size {
		end := min(start+size, len(isbns))
		chunks = append(chunks, isbns[start:end:end])
	}
	return chunks
}
