package tilename

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Disc0-0/LOmanGUI-Full/internal/logtail"
	"go.uber.org/zap"
)

// DefaultScanInterval is how often the scanner sweeps the log directory.
const DefaultScanInterval = 30 * time.Second

// Scanner periodically tails every .log file in the tile log directory and
// feeds fresh lines into the registry. It is the registry's single writer.
type Scanner struct {
	log      *zap.Logger
	dir      string
	tailer   *logtail.Tailer
	registry *Registry
	interval time.Duration
}

// NewScanner wires a tailer-driven scan over dir into registry.
func NewScanner(log *zap.Logger, dir string, tailer *logtail.Tailer, registry *Registry) *Scanner {
	return &Scanner{
		log:      log.Named("name_scanner"),
		dir:      dir,
		tailer:   tailer,
		registry: registry,
		interval: DefaultScanInterval,
	}
}

// Run sweeps the log directory on the scan interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan performs one sweep. An unreadable directory is logged and skipped;
// per-file failures are absorbed by the tailer.
func (s *Scanner) Scan() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("log directory unreadable", zap.String("dir", s.dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if lines := s.tailer.Poll(path); len(lines) > 0 {
			s.registry.Observe(path, lines)
		}
	}
}
