package logtail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func TestPollReturnsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	writeFile(t, path, "one\ntwo\n")

	tailer := New(zap.NewNop())
	first := tailer.Poll(path)
	assert.Equal(t, []string{"one", "two"}, first)

	appendFile(t, path, "three\n")
	assert.Equal(t, []string{"three"}, tailer.Poll(path))
}

func TestPollIdempotentWithoutGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	writeFile(t, path, "line\n")

	tailer := New(zap.NewNop())
	tailer.Poll(path)

	for i := 0; i < 5; i++ {
		assert.Empty(t, tailer.Poll(path))
	}
}

func TestFirstPollHonorsLookback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("padding padding padding padding\n")
	}
	b.WriteString("tail line\n")
	writeFile(t, path, b.String())

	tailer := NewWithLookback(zap.NewNop(), 64)
	lines := tailer.Poll(path)

	// The window covers at most 64 bytes and the leading partial line is
	// discarded, so we get only the final complete lines.
	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 2)
	assert.Equal(t, "tail line", lines[len(lines)-1])
}

func TestFirstPollSmallFileReadsFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	writeFile(t, path, "a\nb\n")

	tailer := New(zap.NewNop())
	assert.Equal(t, []string{"a", "b"}, tailer.Poll(path))
}

func TestRotationResetsCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	writeFile(t, path, "old-one\nold-two\nold-three\n")

	tailer := New(zap.NewNop())
	tailer.Poll(path)

	// Rewrite with shorter content: treated as rotation, read from zero.
	writeFile(t, path, "fresh\n")
	assert.Equal(t, []string{"fresh"}, tailer.Poll(path))
}

func TestMissingFileYieldsNothing(t *testing.T) {
	tailer := New(zap.NewNop())
	for i := 0; i < 3; i++ {
		assert.Empty(t, tailer.Poll(filepath.Join(t.TempDir(), "absent.log")))
	}
}

func TestIncompleteTrailingLineHeldBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.log")
	writeFile(t, path, "done\npart")

	tailer := New(zap.NewNop())
	assert.Equal(t, []string{"done"}, tailer.Poll(path))

	appendFile(t, path, "ial\n")
	assert.Equal(t, []string{"partial"}, tailer.Poll(path))
}
