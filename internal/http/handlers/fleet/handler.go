// Package fleethndlr exposes the fleet over the control API: status, per-tile
// and fleet-wide lifecycle, restart cycles, captured logs, tile names, and
// in-game admin messages.
package fleethndlr

import (
	"time"

	"go.uber.org/zap"

	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
)

// Controller is the slice of the fleet controller the API drives.
type Controller interface {
	Status() []fleet.TileStatus
	StartAll() error
	StopAll() error
	StartOne(tileID int) error
	StopOne(tileID int) error
	RestartCycleAsync(reason string, grace time.Duration) error
	TileLogs(tileID, lines int) ([]string, error)
	Broadcast(tileID int, msg string) error
}

// NameSource exposes the learned server-id to tile-name mapping.
type NameSource interface {
	All() map[string]string
}

// FleetHandler is the HTTP-facing fleet surface.
type FleetHandler struct {
	log   *zap.Logger
	ctl   Controller
	names NameSource
}

// NewFleetHandler builds the handler set.
func NewFleetHandler(log *zap.Logger, ctl Controller, names NameSource) *FleetHandler {
	return &FleetHandler{log: log.Named("fleet-api"), ctl: ctl, names: names}
}
