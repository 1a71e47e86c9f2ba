//go:build linux

// Package supervisor owns one tile's process lifecycle: launch, liveness
// monitoring, crash detection, restart with backoff, and cooperative stop
// with join semantics. The supervisor exclusively owns the OS process; no
// other component may signal it.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
	"github.com/Disc0-0/LOmanGUI-Full/pkg/tilecmd"
	"go.uber.org/zap"
)

const (
	launchRetryDelay = 5 * time.Second
	crashBackoff     = 1 * time.Second
	killGrace        = 3 * time.Second
)

// Supervisor runs an indefinite monitor loop on its own goroutine for one
// tile. Restart-on-crash is unbounded by design: operators intervene via the
// visible crash counter, not an automatic circuit breaker.
type Supervisor struct {
	log      *zap.Logger
	tile     config.Tile
	notifier Notifier
	buf      *LogBuffer

	state   atomic.Int32
	crashes atomic.Uint64 // monotonic, survives restarts

	mu     sync.Mutex // guards cancel/done across Start/Stop
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a supervisor for one tile. The notifier may be nil; buf must not
// be shared with another tile.
func New(log *zap.Logger, tile config.Tile, notifier Notifier, buf *LogBuffer) *Supervisor {
	if buf == nil {
		buf = new(LogBuffer)
	}
	return &Supervisor{
		log:      log.Named("supervisor").With(zap.Int("tile", tile.Index), zap.String("server_id", tile.ServerID)),
		tile:     tile,
		notifier: notifier,
		buf:      buf,
	}
}

// Start validates the tile configuration and launches the monitor loop. When
// the tile is already supervised, the existing process is stopped first and
// then relaunched; there are never two live processes for one tile id.
//
// Configuration errors (missing fields, absent executable) fail this tile's
// start attempt only. Launch failures past validation are retried inside the
// monitor loop and never surface here.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		s.log.Info("existing process found, stopping it first")
		s.stopLocked()
	}

	if err := s.tile.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(s.tile.Executable); err != nil {
		return fmt.Errorf("server executable not found at %s: %w", s.tile.Executable, err)
	}
	s.warnPortConflicts()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go s.monitorLoop(ctx, done)
	return nil
}

// Stop requests cancellation and blocks until the monitor loop confirms the
// process tree is dead. Idempotent; a no-op when nothing is supervised.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// CrashCount returns the fleet-lifetime crash counter for this tile.
func (s *Supervisor) CrashCount() uint64 { return s.crashes.Load() }

// ServerID returns the tile's identifier-based server id.
func (s *Supervisor) ServerID() string { return s.tile.ServerID }

// Index returns the tile index.
func (s *Supervisor) Index() int { return s.tile.Index }

// Logs returns the tile's most recent console output, newest first.
func (s *Supervisor) Logs(lines int) []string { return s.buf.Read(lines) }

// monitorLoop is the supervisor's whole lifetime: spawn, watch, classify
// exits, back off, respawn. Exits only on cancellation, after the process is
// confirmed dead.
func (s *Supervisor) monitorLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			s.transition(StateStopped)
			return
		default:
		}

		s.transition(StateStarting)
		s.log.Info("starting server", zap.String("command", tilecmd.BuildString(s.tile)))

		argv := tilecmd.BuildArgs(s.tile)
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Dir = s.tile.WorkDir
		// Own process group, detached from our terminal, so the whole tree
		// can be signalled at once. Pdeathsig guards against manager death.
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid:   true,
			Pdeathsig: syscall.SIGKILL,
		}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			s.log.Error("stdout pipe creation failed", zap.Error(err))
			if !s.sleepOrCancel(ctx, launchRetryDelay) {
				s.transition(StateStopped)
				return
			}
			continue
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			s.log.Error("stderr pipe creation failed", zap.Error(err))
			if !s.sleepOrCancel(ctx, launchRetryDelay) {
				s.transition(StateStopped)
				return
			}
			continue
		}

		if err := cmd.Start(); err != nil {
			// Process creation failed: never escalates past Starting, never
			// abandons the tile. Retry after a fixed delay.
			s.log.Error("failed to spawn tile process", zap.Error(err))
			if !s.sleepOrCancel(ctx, launchRetryDelay) {
				s.transition(StateStopped)
				return
			}
			continue
		}

		pid := cmd.Process.Pid
		s.log.Info("process started", zap.Int("pid", pid))

		go s.drain(stdout)
		go s.drain(stderr)

		doneCh := make(chan error, 1)
		go func() { doneCh <- cmd.Wait() }()

		s.transition(StateRunning)

		select {
		case err := <-doneCh:
			if !s.handleExit(ctx, err, pid) {
				s.transition(StateStopped)
				return
			}

		case <-ctx.Done():
			s.transition(StateStopping)
			s.killTree(pid, doneCh)
			s.transition(StateStopped)
			return
		}
	}
}

// handleExit classifies a reaped process exit. A stop request can race the
// exit itself; when cancellation is already pending the exit is an operator
// stop, not a crash. Reports whether the loop should respawn.
func (s *Supervisor) handleExit(ctx context.Context, err error, pid int) bool {
	if ctx.Err() != nil {
		s.log.Info("process exited during stop", zap.Int("pid", pid))
		return false
	}

	s.crashes.Add(1)
	if exitErr, ok := err.(*exec.ExitError); ok {
		s.log.Warn("server exited unexpectedly",
			zap.Int("pid", pid),
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.Uint64("crash_total", s.crashes.Load()))
	} else {
		s.log.Warn("server exited unexpectedly",
			zap.Int("pid", pid),
			zap.Error(err),
			zap.Uint64("crash_total", s.crashes.Load()))
	}
	s.transition(StateCrashed)
	return s.sleepOrCancel(ctx, crashBackoff)
}

// killTree terminates the tile's whole process group: SIGTERM, bounded grace,
// then SIGKILL. Returns only once Wait has reaped the child.
func (s *Supervisor) killTree(pid int, doneCh <-chan error) {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		s.log.Warn("SIGTERM failed", zap.Int("pid", pid), zap.Error(err))
	}

	timer := time.NewTimer(killGrace)
	defer timer.Stop()

	select {
	case <-doneCh:
		s.log.Info("process exited after SIGTERM", zap.Int("pid", pid))
	case <-timer.C:
		s.log.Warn("grace timeout expired, sending SIGKILL", zap.Int("pid", pid))
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
			s.log.Error("SIGKILL failed", zap.Int("pid", pid), zap.Error(err))
		}
		<-doneCh
		s.log.Info("process forcefully terminated", zap.Int("pid", pid))
	}
}

func (s *Supervisor) drain(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		s.buf.Append(sc.Text())
	}
}

// sleepOrCancel waits d unless the context is cancelled first. Reports false
// on cancellation.
func (s *Supervisor) sleepOrCancel(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) transition(st State) {
	s.state.Store(int32(st))
	s.log.Info("state transition", zap.String("state", st.String()))
	if s.notifier != nil {
		s.notifier.Publish(Event{
			TileID:   s.tile.Index,
			ServerID: s.tile.ServerID,
			State:    st,
			Crashes:  s.crashes.Load(),
			Time:     time.Now(),
		})
	}
}

// warnPortConflicts probes the tile's game and query ports. A conflict is
// warn-only and never blocks the start.
func (s *Supervisor) warnPortConflicts() {
	for _, port := range []int{s.tile.Port, s.tile.QueryPort} {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			s.log.Warn("port already in use, may cause conflicts", zap.Int("port", port))
		}
	}
}
