package file_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/book-import/internal/infrastructure/file"
)

func TestLocalSourceOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "isbns.csv"), []byte("isbn\n"), 0o644))

	source := file.NewLocalSource(dir)
	rc, err := source.Open(context.Background(), "isbns.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "isbn\n", string(data))
}

func TestLocalSourceRejectsEscapes(t *testing.T) {
	t.Parallel()

	source := file.NewLocalSource(t.TempDir())
	for _, p := range []string{"../secret.csv", "/etc/passwd", "a/../../b.csv"} {
		_, err := source.Open(context.Background(), p)
		require.ErrorIs(t, err, file.ErrOutsideBaseDir, p)
	}
}
