// Package fleet coordinates the whole tile set: fan-out start/stop, the
// single-flight restart cycle, and the periodic update loop that keeps the
// server binary and workshop mods current.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
	"github.com/Disc0-0/LOmanGUI-Full/internal/steam"
	"github.com/Disc0-0/LOmanGUI-Full/internal/supervisor"
)

var (
	// ErrCycleInProgress is returned when a restart cycle is requested while
	// another one holds the gate.
	ErrCycleInProgress = errors.New("restart cycle already in progress")
	// ErrTileNotFound is returned for tile ids outside the configured range.
	ErrTileNotFound = errors.New("tile not found")
)

// settleDelay is how long the fleet waits after all tiles report stopped
// before touching the install dir. The game flushes saves on exit.
const settleDelay = 5 * time.Second

// TileRunner is what the controller needs from a tile supervisor.
type TileRunner interface {
	Start() error
	Stop()
	State() supervisor.State
	CrashCount() uint64
	ServerID() string
	Index() int
	Logs(lines int) []string
}

// BinaryUpdater manages the dedicated-server install via steamcmd.
type BinaryUpdater interface {
	UpdateServer(ctx context.Context) error
	CheckServerUpdate(ctx context.Context) (bool, error)
}

// ModChecker reports which configured mods have newer published versions.
type ModChecker interface {
	CheckUpdates(ctx context.Context, workshopIDs []string) (stale []string, updated steam.ModsInfo, err error)
}

// ModInstaller downloads stale mods and syncs the mods directory.
type ModInstaller interface {
	Install(ctx context.Context, staleIDs, activeIDs []string, updated steam.ModsInfo) error
}

// Broadcaster posts admin messages to players in-game.
type Broadcaster interface {
	SendToAll(ctx context.Context, msg string) error
	SendToTile(ctx context.Context, tileID int, msg string) error
}

// Announcer posts fleet-level notices to the operator channel.
type Announcer interface {
	Announce(msg string)
}

// NameLookup resolves a server id to its player-facing tile name.
type NameLookup interface {
	Lookup(serverID, fallback string) string
}

// Controller owns the fleet lifecycle. All restart cycles flow through a
// single-token gate so concurrent triggers coalesce instead of stacking.
type Controller struct {
	log   *zap.Logger
	cfg   *config.Fleet
	tiles []TileRunner

	updater   BinaryUpdater
	checker   ModChecker
	installer ModInstaller
	caster    Broadcaster
	announcer Announcer
	names     NameLookup

	gate   chan struct{}
	sched  *schedule
	settle time.Duration
}

// New wires a controller over the given tile runners and collaborators.
func New(
	log *zap.Logger,
	cfg *config.Fleet,
	tiles []TileRunner,
	updater BinaryUpdater,
	checker ModChecker,
	installer ModInstaller,
	caster Broadcaster,
	announcer Announcer,
	names NameLookup,
) *Controller {
	gate := make(chan struct{}, 1)
	gate <- struct{}{}
	return &Controller{
		log:       log.Named("fleet"),
		cfg:       cfg,
		tiles:     tiles,
		updater:   updater,
		checker:   checker,
		installer: installer,
		caster:    caster,
		announcer: announcer,
		names:     names,
		gate:      gate,
		sched:     newSchedule(),
		settle:    settleDelay,
	}
}

// StartAll launches every tile concurrently. Individual launch failures are
// collected; the rest of the fleet still comes up.
func (c *Controller) StartAll() error {
	c.log.Info("starting all tiles", zap.Int("count", len(c.tiles)))
	var g errgroup.Group
	for _, t := range c.tiles {
		t := t
		g.Go(func() error {
			if err := t.Start(); err != nil {
				return fmt.Errorf("start %s: %w", t.ServerID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops every tile concurrently and verifies each one actually
// reached Stopped. Any tile that did not is an error; callers treat that as
// grounds to abort whatever maintenance they were about to do.
func (c *Controller) StopAll() error {
	c.log.Info("stopping all tiles", zap.Int("count", len(c.tiles)))
	var g errgroup.Group
	for _, t := range c.tiles {
		t := t
		g.Go(func() error {
			t.Stop()
			if st := t.State(); st != supervisor.StateStopped {
				return fmt.Errorf("stop %s: still %s", t.ServerID(), st)
			}
			return nil
		})
	}
	return g.Wait()
}

// StartOne launches a single tile by id.
func (c *Controller) StartOne(tileID int) error {
	t, err := c.tile(tileID)
	if err != nil {
		return err
	}
	return t.Start()
}

// StopOne stops a single tile by id.
func (c *Controller) StopOne(tileID int) error {
	t, err := c.tile(tileID)
	if err != nil {
		return err
	}
	t.Stop()
	return nil
}

// TileLogs returns the newest captured output lines for one tile.
func (c *Controller) TileLogs(tileID, lines int) ([]string, error) {
	t, err := c.tile(tileID)
	if err != nil {
		return nil, err
	}
	return t.Logs(lines), nil
}

func (c *Controller) tile(tileID int) (TileRunner, error) {
	if tileID < 0 || tileID >= len(c.tiles) {
		return nil, fmt.Errorf("%w: %d", ErrTileNotFound, tileID)
	}
	return c.tiles[tileID], nil
}

// TileStatus is one tile's externally visible state.
type TileStatus struct {
	TileID   int    `json:"tile_id"`
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Crashes  uint64 `json:"crashes"`
}

// Status snapshots every tile.
func (c *Controller) Status() []TileStatus {
	out := make([]TileStatus, 0, len(c.tiles))
	for _, t := range c.tiles {
		out = append(out, TileStatus{
			TileID:   t.Index(),
			ServerID: t.ServerID(),
			Name:     c.names.Lookup(t.ServerID(), t.ServerID()),
			State:    t.State().String(),
			Crashes:  t.CrashCount(),
		})
	}
	return out
}

// cycleOptions selects what maintenance runs between the stop and start
// halves of a restart cycle.
type cycleOptions struct {
	reason       string
	wait         time.Duration // settle sleep after maintenance, before startAll
	updateBinary bool
	checkMods    bool           // run a fresh mod check inside the cycle
	staleMods    []string       // precomputed stale set, used when checkMods is false
	modsState    steam.ModsInfo // state to persist after installing staleMods
}

// RestartCycle runs a full operator-requested cycle: stop, update binary and
// mods, wait, start. Returns ErrCycleInProgress when another cycle holds the
// gate.
func (c *Controller) RestartCycle(ctx context.Context, reason string, wait time.Duration) error {
	if !c.tryAcquire() {
		return ErrCycleInProgress
	}
	defer c.release()
	return c.cycle(ctx, cycleOptions{
		reason:       reason,
		wait:         wait,
		updateBinary: true,
		checkMods:    true,
	})
}

// RestartCycleAsync claims the gate synchronously so callers learn about a
// conflicting cycle right away, then runs the cycle in the background. Used
// by the control API, where a cycle outlives any sane request timeout.
func (c *Controller) RestartCycleAsync(reason string, wait time.Duration) error {
	if !c.tryAcquire() {
		return ErrCycleInProgress
	}
	go func() {
		defer c.release()
		err := c.cycle(context.Background(), cycleOptions{
			reason:       reason,
			wait:         wait,
			updateBinary: true,
			checkMods:    true,
		})
		if err != nil {
			c.log.Error("requested restart cycle failed", zap.Error(err))
		}
	}()
	return nil
}

// Broadcast posts an admin message in-game, to one tile or to all when
// tileID is negative. Delivery includes the display window, so it runs in
// the background.
func (c *Controller) Broadcast(tileID int, msg string) error {
	if tileID >= 0 {
		if _, err := c.tile(tileID); err != nil {
			return err
		}
	}
	go func() {
		var err error
		if tileID < 0 {
			err = c.caster.SendToAll(context.Background(), msg)
		} else {
			err = c.caster.SendToTile(context.Background(), tileID, msg)
		}
		if err != nil {
			c.log.Warn("admin message delivery failed", zap.Error(err))
		}
	}()
	return nil
}

// cycle is the one code path that restarts the fleet. Collaborator failures
// after the stop barrier are logged and skipped; the cycle always tries to
// bring the tiles back up. Only a failed stop aborts, because maintenance on
// a live install is worse than no maintenance.
func (c *Controller) cycle(ctx context.Context, opts cycleOptions) error {
	c.log.Info("restart cycle starting", zap.String("reason", opts.reason))

	if err := c.StopAll(); err != nil {
		c.announcer.Announce("Fleet restart aborted: tiles failed to stop")
		return fmt.Errorf("restart cycle aborted: %w", err)
	}
	if err := sleepCtx(ctx, c.settle); err != nil {
		return err
	}

	if opts.updateBinary {
		if err := c.updater.UpdateServer(ctx); err != nil {
			c.log.Error("server update failed, starting fleet on current build", zap.Error(err))
			c.announcer.Announce("Server update failed; fleet restarting on the current build")
		}
	}

	stale, state := opts.staleMods, opts.modsState
	if opts.checkMods {
		var err error
		stale, state, err = c.checker.CheckUpdates(ctx, c.cfg.ModList())
		if err != nil {
			c.log.Error("mod check failed, skipping mod install", zap.Error(err))
			stale, state = nil, nil
		}
	}
	if len(stale) > 0 {
		if err := c.installer.Install(ctx, stale, c.cfg.ModList(), state); err != nil {
			c.log.Error("mod install failed", zap.Error(err))
		}
	}

	if opts.wait > 0 {
		if err := sleepCtx(ctx, opts.wait); err != nil {
			return err
		}
	}

	if err := c.StartAll(); err != nil {
		return fmt.Errorf("restart cycle: %w", err)
	}
	c.log.Info("restart cycle finished", zap.String("reason", opts.reason))
	return nil
}

// Run drives the periodic maintenance loop until the context is cancelled.
// Mod checks and server-update checks each fire on their own interval; when
// both come due in one tick the server check wins and at most one restart
// cycle runs.
func (c *Controller) Run(ctx context.Context) error {
	now := time.Now()
	c.sched.add(triggerServerCheck, c.cfg.ServerCheckEvery(), now.Add(c.cfg.ServerCheckEvery()))
	c.sched.add(triggerModCheck, c.cfg.ModCheckEvery(), now.Add(c.cfg.ModCheckEvery()))

	for {
		when, ok := c.sched.next()
		if !ok {
			return nil
		}
		timer := time.NewTimer(time.Until(when))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		cycled := false
		for _, kind := range c.sched.due(time.Now()) {
			if cycled {
				continue // one restart cycle per tick
			}
			switch kind {
			case triggerServerCheck:
				cycled = c.serverCheckTick(ctx)
			case triggerModCheck:
				cycled = c.modCheckTick(ctx)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// serverCheckTick asks Steam whether the server app needs an update and runs
// an update cycle when it does. Reports whether a cycle ran.
func (c *Controller) serverCheckTick(ctx context.Context) bool {
	needed, err := c.updater.CheckServerUpdate(ctx)
	if err != nil {
		c.log.Error("server update check failed", zap.Error(err))
		return false
	}
	if !needed {
		return false
	}

	if !c.tryAcquire() {
		c.log.Info("server update pending but a cycle is already running")
		return false
	}
	defer c.release()

	if err := c.advanceWarn(ctx, "Server update available"); err != nil {
		return true
	}
	err = c.cycle(ctx, cycleOptions{
		reason:       "Server update available",
		updateBinary: true,
		checkMods:    c.cfg.UpdateBeforeModCheck,
	})
	if err != nil {
		c.log.Error("server update cycle failed", zap.Error(err))
	}
	return true
}

// advanceWarn tells players and operators that an automatic cycle is coming,
// then waits out the configured grace period.
func (c *Controller) advanceWarn(ctx context.Context, reason string) error {
	grace := c.cfg.RestartGrace()
	msg := fmt.Sprintf("%s. Fleet restarting in %s.", reason, grace)
	if grace == 0 {
		msg = reason + ". Fleet restarting now."
	}
	c.announcer.Announce(msg)
	if err := c.caster.SendToAll(ctx, msg); err != nil {
		c.log.Warn("in-game warning failed", zap.Error(err))
	}
	return sleepCtx(ctx, grace)
}

// modCheckTick compares installed mod versions against the Workshop and runs
// an install cycle when any are stale. Reports whether a cycle ran.
func (c *Controller) modCheckTick(ctx context.Context) bool {
	mods := c.cfg.ModList()
	if len(mods) == 0 {
		return false
	}

	stale, state, err := c.checker.CheckUpdates(ctx, mods)
	if err != nil {
		c.log.Error("mod check failed", zap.Error(err))
		return false
	}
	if len(stale) == 0 {
		return false
	}

	if !c.tryAcquire() {
		c.log.Info("mod updates pending but a cycle is already running")
		return false
	}
	defer c.release()

	reason := fmt.Sprintf("Mod updates available (%d)", len(stale))
	if err := c.advanceWarn(ctx, reason); err != nil {
		return true
	}
	err = c.cycle(ctx, cycleOptions{
		reason:       reason,
		updateBinary: c.cfg.UpdateBeforeModCheck,
		staleMods:    stale,
		modsState:    state,
	})
	if err != nil {
		c.log.Error("mod update cycle failed", zap.Error(err))
	}
	return true
}

// Shutdown warns players, then stops the whole fleet. Used on process exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.announcer.Announce("Fleet shutting down")
	if err := c.caster.SendToAll(ctx, "Server is shutting down"); err != nil {
		c.log.Warn("shutdown warning failed", zap.Error(err))
	}
	return c.StopAll()
}

func (c *Controller) tryAcquire() bool {
	select {
	case <-c.gate:
		return true
	default:
		return false
	}
}

func (c *Controller) release() { c.gate <- struct{}{} }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
