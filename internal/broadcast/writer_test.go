package broadcast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
)

func testWriter(t *testing.T, tiles int) (*Writer, *config.Fleet) {
	t.Helper()
	fleet := &config.Fleet{
		FolderPath: filepath.Join(t.TempDir(), "Mist", "Binaries", "Win64"),
		Identifier: "Disc0oasis",
		TileNum:    tiles,
	}
	w := NewWriter(zap.NewNop(), fleet)
	w.sleep = func(context.Context) error { return nil }
	return w, fleet
}

func readAdminMessage(t *testing.T, fleet *config.Fleet, serverID string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fleet.TileConfigDir(serverID), "Game.ini"))
	require.NoError(t, err)
	return string(data)
}

func TestWriter_SendToTileWritesAndClears(t *testing.T) {
	w, fleet := testWriter(t, 2)

	wrote := false
	orig := w.sleep
	w.sleep = func(ctx context.Context) error {
		// sampled mid-window, before the clear
		assert.Contains(t, readAdminMessage(t, fleet, "Disc0oasis1"), `AdminMessage="wipe in 5"`)
		wrote = true
		return orig(ctx)
	}

	require.NoError(t, w.SendToTile(context.Background(), 1, "wipe in 5"))
	assert.True(t, wrote)
	assert.Contains(t, readAdminMessage(t, fleet, "Disc0oasis1"), `AdminMessage=""`)
}

func TestWriter_SendToAllCoversEveryTile(t *testing.T) {
	w, fleet := testWriter(t, 3)

	seen := 0
	w.sleep = func(context.Context) error {
		for i := 0; i < 3; i++ {
			serverID := fleet.Tile(i).ServerID
			assert.Contains(t, readAdminMessage(t, fleet, serverID), `AdminMessage="restarting soon"`)
			seen++
		}
		return nil
	}

	require.NoError(t, w.SendToAll(context.Background(), "restarting soon"))
	assert.Equal(t, 3, seen)
	for i := 0; i < 3; i++ {
		assert.Contains(t, readAdminMessage(t, fleet, fleet.Tile(i).ServerID), `AdminMessage=""`)
	}
}

func TestWriter_CancelledContextSkipsClear(t *testing.T) {
	w, fleet := testWriter(t, 1)
	w.sleep = displayWindow

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.SendToTile(ctx, 0, "never cleared")
	require.Error(t, err)
	assert.Contains(t, readAdminMessage(t, fleet, "Disc0oasis0"), `AdminMessage="never cleared"`)
}
