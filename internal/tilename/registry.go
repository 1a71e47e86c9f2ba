// Package tilename resolves opaque server identifiers into human-readable
// tile names by watching the tiles' own log output.
//
// The game never exposes its tile name over an API; it only prints it while
// booting. Two independent patterns drive extraction: the launch-argument
// identifier token, and a later persistence-subsystem readiness line carrying
// the display name. The most recently seen identifier is retained as per-file
// context, so a name line with no id nearby is still attributable to the tile
// that owns the log.
package tilename

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	serverIDPattern = regexp.MustCompile(`-identifier=(\w+)(\d+)`)
	tileNamePattern = regexp.MustCompile(`LogPersistence: tile_name: (.+)`)
)

// Registry maps server ids to display names. Reads are always safe and never
// block on persistence; only the log-scan path mutates it. Entries are never
// removed, only overwritten.
type Registry struct {
	log  *zap.Logger
	path string

	mu      sync.RWMutex
	names   map[string]string
	lastIDs map[string]string // per log file, most recently seen identifier

	writes atomic.Int64 // store writes performed, for visibility and tests
}

// NewRegistry loads the persisted mapping from path. A missing or corrupt
// store is non-fatal and yields an empty registry.
func NewRegistry(log *zap.Logger, path string) *Registry {
	r := &Registry{
		log:     log.Named("tilename"),
		path:    path,
		names:   make(map[string]string),
		lastIDs: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("tile mappings unreadable, starting empty", zap.Error(err))
		}
		return r
	}
	if err := json.Unmarshal(data, &r.names); err != nil {
		r.log.Warn("tile mappings corrupt, starting empty", zap.Error(err))
		r.names = make(map[string]string)
		return r
	}
	r.log.Info("loaded tile mappings", zap.Int("count", len(r.names)))
	return r
}

// Observe extracts (server_id, name) pairs from lines freshly tailed out of
// one log file. The identifier context survives across calls but is scoped to
// the source file, so a name line is never attributed to another tile's id.
func (r *Registry) Observe(source string, lines []string) {
	for _, line := range lines {
		if m := serverIDPattern.FindStringSubmatch(line); m != nil {
			r.mu.Lock()
			r.lastIDs[source] = m[1] + m[2]
			r.mu.Unlock()
		}
		if m := tileNamePattern.FindStringSubmatch(line); m != nil {
			r.mu.RLock()
			id := r.lastIDs[source]
			r.mu.RUnlock()
			if id != "" {
				r.Update(id, strings.TrimSpace(m[1]))
			}
		}
	}
}

// Update records a display name for a server id. A no-op when the name is
// unchanged; otherwise the whole map is persisted.
func (r *Registry) Update(serverID, name string) {
	r.mu.Lock()
	if r.names[serverID] == name {
		r.mu.Unlock()
		return
	}
	r.log.Info("tile name updated", zap.String("server_id", serverID), zap.String("name", name))
	r.names[serverID] = name
	snapshot := make(map[string]string, len(r.names))
	for k, v := range r.names {
		snapshot[k] = v
	}
	r.mu.Unlock()

	r.save(snapshot)
}

// Lookup returns the display name for a server id, or fallback verbatim when
// unknown. Never fails, never blocks on I/O.
func (r *Registry) Lookup(serverID, fallback string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[serverID]; ok {
		return name
	}
	return fallback
}

// All returns a copy of every known mapping.
func (r *Registry) All() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.names))
	for k, v := range r.names {
		out[k] = v
	}
	return out
}

// WriteCount reports how many store writes the registry has performed.
func (r *Registry) WriteCount() int64 { return r.writes.Load() }

func (r *Registry) save(snapshot map[string]string) {
	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		r.log.Error("encode tile mappings failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		r.log.Error("save tile mappings failed", zap.Error(err))
		return
	}
	r.writes.Add(1)
}
