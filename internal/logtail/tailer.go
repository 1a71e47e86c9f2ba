// Package logtail incrementally reads growing plain-text log files.
//
// The game writes its own log files; the tailer never holds them open between
// polls and never blocks beyond a single bounded read. Extraction rules live
// elsewhere (tilename); this package only yields newly appended lines.
package logtail

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLookback bounds how far back the first poll of a file reaches.
// Large tile logs make reading from offset 0 prohibitively expensive and
// replay stale identifier lines; 50 KB catches recently rotated-in content.
const DefaultLookback = 50 * 1024

// cursor tracks per-file read state. Kept in memory only; on restart the
// lookback re-derives a safe re-entry point.
type cursor struct {
	offset   int64
	lastScan time.Time
}

// Tailer polls files for newly appended lines. Safe for concurrent use.
type Tailer struct {
	log      *zap.Logger
	lookback int64

	mu      sync.Mutex
	cursors map[string]*cursor
	missing map[string]bool // paths already logged as unreadable this miss streak
}

// New returns a Tailer with the default lookback window.
func New(log *zap.Logger) *Tailer {
	return NewWithLookback(log, DefaultLookback)
}

// NewWithLookback returns a Tailer with an explicit first-poll lookback.
func NewWithLookback(log *zap.Logger, lookback int64) *Tailer {
	return &Tailer{
		log:      log.Named("logtail"),
		lookback: lookback,
		cursors:  make(map[string]*cursor),
		missing:  make(map[string]bool),
	}
}

// Poll returns the complete lines appended to path since the previous poll.
//
// First poll of a path positions at EOF minus the lookback window and
// discards a possibly partial leading line. A shrunken file is treated as
// rotation and re-read from the start. A missing or unreadable file yields no
// lines and is logged at most once per miss streak; errors never reach the
// caller.
func (t *Tailer) Poll(path string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if !t.missing[path] {
			t.log.Warn("log file unreadable", zap.String("path", path), zap.Error(err))
			t.missing[path] = true
		}
		return nil
	}
	defer f.Close()
	delete(t.missing, path)

	info, err := f.Stat()
	if err != nil {
		t.log.Warn("log file stat failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	size := info.Size()

	cur, seen := t.cursors[path]
	skipPartial := false
	if !seen {
		cur = &cursor{}
		t.cursors[path] = cur
		cur.offset = size - t.lookback
		if cur.offset < 0 {
			cur.offset = 0
		}
		skipPartial = cur.offset > 0
	} else if size < cur.offset {
		// File shrank: rotated in place. Start over.
		t.log.Info("log file rotated", zap.String("path", path), zap.Int64("size", size))
		cur.offset = 0
	}

	if size == cur.offset {
		cur.lastScan = time.Now()
		return nil
	}

	if _, err := f.Seek(cur.offset, io.SeekStart); err != nil {
		t.log.Warn("log file seek failed", zap.String("path", path), zap.Error(err))
		return nil
	}

	var lines []string
	r := bufio.NewReader(f)
	offset := cur.offset
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// Incomplete trailing line: leave the cursor before it so the
			// next poll re-reads it whole.
			break
		}
		offset += int64(len(line))
		if skipPartial {
			skipPartial = false
			continue
		}
		lines = append(lines, trimEOL(line))
	}

	cur.offset = offset
	cur.lastScan = time.Now()
	return lines
}

// Forget drops the cursor for path. The next poll starts fresh with the
// lookback window.
func (t *Tailer) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, path)
	delete(t.missing, path)
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
