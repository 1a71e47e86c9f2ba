package supervisor

import "time"

// State is the tile lifecycle state.
//
//	Stopped → Starting → Running → Stopping → Stopped
//	                        ↓
//	                     Crashed → Starting (after backoff, unless stopping)
//
// Crashed is not terminal; Stopped is only reached via an explicit stop.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Event describes one state transition of one tile. The display name is not
// resolved here; the notification adapter owns the registry lookup.
type Event struct {
	TileID   int
	ServerID string
	State    State
	Crashes  uint64
	Time     time.Time
}

// Notifier receives state-transition events. Implementations must be
// fire-and-forget: the supervisor never waits on or retries delivery.
type Notifier interface {
	Publish(Event)
}
