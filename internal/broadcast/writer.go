// Package broadcast delivers admin messages to players in-game. The game
// picks up an AdminMessage value from each tile's Game.ini; writing the
// message, letting it display, then clearing it is the whole protocol.
package broadcast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
)

const gameModeSection = "[/Game/LastOasis/GameMode/BP_GameMode.BP_GameMode_C]"

// DisplayFor is how long a message stays in Game.ini before it is cleared.
// The game polls the file, so the window must comfortably exceed its poll
// interval.
const DisplayFor = 11 * time.Second

// displayWindow waits out the message display window, or returns early when
// the context is cancelled.
func displayWindow(ctx context.Context) error {
	timer := time.NewTimer(DisplayFor)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Writer posts admin messages to tiles by rewriting their Game.ini.
type Writer struct {
	log   *zap.Logger
	fleet *config.Fleet
	sleep func(ctx context.Context) error
}

// NewWriter builds a writer over the fleet's install layout.
func NewWriter(log *zap.Logger, fleet *config.Fleet) *Writer {
	return &Writer{
		log:   log.Named("broadcast"),
		fleet: fleet,
		sleep: displayWindow,
	}
}

// SendToTile shows a message on one tile, waits out the display window, then
// clears it. Blocks for the window; run it in a goroutine when latency
// matters.
func (w *Writer) SendToTile(ctx context.Context, tileID int, msg string) error {
	tile := w.fleet.Tile(tileID)
	if err := w.writeMessage(tile.ServerID, msg); err != nil {
		return err
	}
	w.log.Info("admin message posted", zap.String("server_id", tile.ServerID), zap.String("message", msg))
	if err := w.sleep(ctx); err != nil {
		return err
	}
	return w.writeMessage(tile.ServerID, "")
}

// SendToAll shows a message on every tile at once, sharing a single display
// window, then clears them all.
func (w *Writer) SendToAll(ctx context.Context, msg string) error {
	if err := w.forEachTile(func(serverID string) error { return w.writeMessage(serverID, msg) }); err != nil {
		return err
	}
	w.log.Info("admin message posted to all tiles", zap.String("message", msg))
	if err := w.sleep(ctx); err != nil {
		return err
	}
	return w.forEachTile(func(serverID string) error { return w.writeMessage(serverID, "") })
}

func (w *Writer) forEachTile(fn func(serverID string) error) error {
	var g errgroup.Group
	for _, t := range w.fleet.Tiles() {
		serverID := t.ServerID
		g.Go(func() error { return fn(serverID) })
	}
	return g.Wait()
}

// writeMessage rewrites the tile's Game.ini atomically via rename so the game
// never reads a half-written file.
func (w *Writer) writeMessage(serverID, msg string) error {
	dir := w.fleet.TileConfigDir(serverID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("broadcast %s: %w", serverID, err)
	}

	content := fmt.Sprintf("%s\nAdminMessage=%q\n", gameModeSection, msg)
	path := filepath.Join(dir, "Game.ini")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("broadcast %s: %w", serverID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("broadcast %s: %w", serverID, err)
	}
	return nil
}
