package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
	"github.com/Disc0-0/LOmanGUI-Full/internal/steam"
	"github.com/Disc0-0/LOmanGUI-Full/internal/supervisor"
)

type fakeTile struct {
	mu         sync.Mutex
	index      int
	serverID   string
	state      supervisor.State
	startCalls int
	stopCalls  int
	startErr   error
	failStop   bool
}

func (f *fakeTile) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = supervisor.StateRunning
	return nil
}

func (f *fakeTile) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if !f.failStop {
		f.state = supervisor.StateStopped
	}
}

func (f *fakeTile) State() supervisor.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTile) CrashCount() uint64 { return 0 }
func (f *fakeTile) ServerID() string   { return f.serverID }
func (f *fakeTile) Index() int         { return f.index }
func (f *fakeTile) Logs(int) []string  { return nil }

type fakeUpdater struct {
	mu          sync.Mutex
	updateErr   error
	checkNeeded bool
	checkErr    error
	updateCalls int
	checkCalls  int
	onUpdate    func()
}

func (f *fakeUpdater) UpdateServer(context.Context) error {
	f.mu.Lock()
	f.updateCalls++
	fn := f.onUpdate
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return f.updateErr
}

func (f *fakeUpdater) CheckServerUpdate(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	return f.checkNeeded, f.checkErr
}

type fakeChecker struct {
	mu    sync.Mutex
	stale []string
	state steam.ModsInfo
	err   error
	calls int
}

func (f *fakeChecker) CheckUpdates(context.Context, []string) ([]string, steam.ModsInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stale, f.state, f.err
}

type fakeInstaller struct {
	mu       sync.Mutex
	err      error
	calls    int
	gotStale []string
}

func (f *fakeInstaller) Install(_ context.Context, stale, _ []string, _ steam.ModsInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotStale = stale
	return f.err
}

type fakeCaster struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeCaster) SendToAll(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeCaster) SendToTile(_ context.Context, tileID int, msg string) error {
	return f.SendToAll(context.Background(), msg)
}

type fakeAnnouncer struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeAnnouncer) Announce(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

type fakeNames map[string]string

func (f fakeNames) Lookup(serverID, fallback string) string {
	if name, ok := f[serverID]; ok {
		return name
	}
	return fallback
}

type fixture struct {
	ctl       *Controller
	tiles     []*fakeTile
	updater   *fakeUpdater
	checker   *fakeChecker
	installer *fakeInstaller
	caster    *fakeCaster
	announcer *fakeAnnouncer
}

func newFixture(t *testing.T, tileCount int, cfg *config.Fleet) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Fleet{Identifier: "Disc0oasis", TileNum: tileCount, Mods: "111,222"}
	}
	f := &fixture{
		updater:   &fakeUpdater{},
		checker:   &fakeChecker{state: steam.ModsInfo{}},
		installer: &fakeInstaller{},
		caster:    &fakeCaster{},
		announcer: &fakeAnnouncer{},
	}
	var runners []TileRunner
	for i := 0; i < tileCount; i++ {
		ft := &fakeTile{index: i, serverID: cfg.Tile(i).ServerID, state: supervisor.StateRunning}
		f.tiles = append(f.tiles, ft)
		runners = append(runners, ft)
	}
	f.ctl = New(zap.NewNop(), cfg, runners,
		f.updater, f.checker, f.installer, f.caster, f.announcer, fakeNames{})
	f.ctl.settle = 0
	return f
}

func TestController_RestartCycleStopsAllBeforeMaintenance(t *testing.T) {
	f := newFixture(t, 3, nil)
	f.updater.onUpdate = func() {
		for _, ft := range f.tiles {
			assert.Equal(t, supervisor.StateStopped, ft.State(), "maintenance ran before all tiles stopped")
		}
	}

	require.NoError(t, f.ctl.RestartCycle(context.Background(), "manual", 0))

	assert.Equal(t, 1, f.updater.updateCalls)
	for _, ft := range f.tiles {
		assert.Equal(t, 1, ft.stopCalls)
		assert.Equal(t, 1, ft.startCalls)
		assert.Equal(t, supervisor.StateRunning, ft.State())
	}
}

func TestController_FailedStopAbortsCycle(t *testing.T) {
	f := newFixture(t, 3, nil)
	f.tiles[1].failStop = true

	err := f.ctl.RestartCycle(context.Background(), "manual", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Disc0oasis1")

	// no maintenance, no restart of the tiles that did stop
	assert.Zero(t, f.updater.updateCalls)
	assert.Zero(t, f.installer.calls)
	for _, ft := range f.tiles {
		assert.Zero(t, ft.startCalls)
	}
}

func TestController_FailedUpdaterStillRestartsFleet(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.updater.updateErr = errors.New("steamcmd exploded")

	require.NoError(t, f.ctl.RestartCycle(context.Background(), "manual", 0))
	for _, ft := range f.tiles {
		assert.Equal(t, supervisor.StateRunning, ft.State())
	}
}

func TestController_RestartCycleWaitsBeforeStart(t *testing.T) {
	f := newFixture(t, 1, nil)

	begin := time.Now()
	require.NoError(t, f.ctl.RestartCycle(context.Background(), "manual", 80*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(begin), 80*time.Millisecond)
	assert.Equal(t, 1, f.tiles[0].startCalls)
}

func TestController_ConcurrentCyclesCoalesce(t *testing.T) {
	f := newFixture(t, 1, nil)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	f.updater.onUpdate = func() {
		close(entered)
		<-proceed
	}

	done := make(chan error, 1)
	go func() { done <- f.ctl.RestartCycle(context.Background(), "first", 0) }()
	<-entered

	assert.ErrorIs(t, f.ctl.RestartCycle(context.Background(), "second", 0), ErrCycleInProgress)

	close(proceed)
	require.NoError(t, <-done)

	// gate released; a fresh cycle is accepted again
	require.NoError(t, f.ctl.RestartCycle(context.Background(), "third", 0))
}

func TestController_StaleModsInstalledDuringCycle(t *testing.T) {
	f := newFixture(t, 1, nil)
	f.checker.stale = []string{"222"}
	f.checker.state = steam.ModsInfo{"111": 1, "222": 2}

	require.NoError(t, f.ctl.RestartCycle(context.Background(), "manual", 0))
	assert.Equal(t, 1, f.installer.calls)
	assert.Equal(t, []string{"222"}, f.installer.gotStale)
}

func TestController_StartStopOneBounds(t *testing.T) {
	f := newFixture(t, 2, nil)

	require.NoError(t, f.ctl.StopOne(1))
	assert.Equal(t, supervisor.StateStopped, f.tiles[1].State())
	assert.Equal(t, supervisor.StateRunning, f.tiles[0].State())

	require.NoError(t, f.ctl.StartOne(1))
	assert.Equal(t, supervisor.StateRunning, f.tiles[1].State())

	assert.ErrorIs(t, f.ctl.StartOne(2), ErrTileNotFound)
	assert.ErrorIs(t, f.ctl.StopOne(-1), ErrTileNotFound)
}

func TestController_StatusResolvesNames(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.ctl.names = fakeNames{"Disc0oasis0": "Cradle of the Sun"}

	status := f.ctl.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "Cradle of the Sun", status[0].Name)
	assert.Equal(t, "Disc0oasis1", status[1].Name)
	assert.Equal(t, "running", status[0].State)
}

func TestController_RunServerCheckWinsWhenBothDue(t *testing.T) {
	cfg := &config.Fleet{
		Identifier:          "Disc0oasis",
		TileNum:             1,
		Mods:                "111",
		ModCheckInterval:    1,
		ServerCheckInterval: 1,
		RestartTime:         0,
	}
	f := newFixture(t, 1, cfg)
	f.updater.checkNeeded = true
	f.checker.stale = []string{"111"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.ctl.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		f.updater.mu.Lock()
		defer f.updater.mu.Unlock()
		return f.updater.updateCalls >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	// the server-update cycle ran; the mod check due in the same tick was
	// deferred, not turned into a second cycle
	f.updater.mu.Lock()
	firstTickUpdates := f.updater.updateCalls
	f.updater.mu.Unlock()
	assert.GreaterOrEqual(t, firstTickUpdates, 1)
	f.installer.mu.Lock()
	defer f.installer.mu.Unlock()
	assert.Zero(t, f.installer.calls)
}

func TestController_RunModCheckTriggersInstallCycle(t *testing.T) {
	cfg := &config.Fleet{
		Identifier:       "Disc0oasis",
		TileNum:          1,
		Mods:             "111",
		ModCheckInterval: 1,
		// server check far in the future
		ServerCheckInterval: 3600,
		RestartTime:         0,
	}
	f := newFixture(t, 1, cfg)
	f.checker.stale = []string{"111"}
	f.checker.state = steam.ModsInfo{"111": 42}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.ctl.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		f.installer.mu.Lock()
		defer f.installer.mu.Unlock()
		return f.installer.calls >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	f.installer.mu.Lock()
	defer f.installer.mu.Unlock()
	assert.Equal(t, []string{"111"}, f.installer.gotStale)
	// default sequencing does not update the binary on a mod cycle
	f.updater.mu.Lock()
	defer f.updater.mu.Unlock()
	assert.Zero(t, f.updater.updateCalls)
}

func TestController_ShutdownWarnsThenStops(t *testing.T) {
	f := newFixture(t, 2, nil)

	require.NoError(t, f.ctl.Shutdown(context.Background()))
	for _, ft := range f.tiles {
		assert.Equal(t, supervisor.StateStopped, ft.State())
	}
	assert.NotEmpty(t, f.caster.msgs)
	assert.NotEmpty(t, f.announcer.msgs)
}
