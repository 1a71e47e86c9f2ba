package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fleet is the host-wide fleet configuration, loaded from a flat JSON file
// (config.json). A reload replaces the whole value; nothing mutates a Fleet
// in place after Load returns.
type Fleet struct {
	// Install layout.
	FolderPath   string `json:"folder_path"`    // dedicated-server install dir (contains the server binary)
	SteamCmdPath string `json:"steam_cmd_path"` // steamcmd install dir
	ServerBinary string `json:"server_binary"`  // binary name inside FolderPath
	LogFolder    string `json:"log_folder"`     // tile log dir; derived from FolderPath when empty

	// Tile identity and networking.
	TileNum        int    `json:"tile_num"`
	Identifier     string `json:"identifier"` // server_id prefix; tile i gets Identifier+i
	Slots          int    `json:"slots"`
	Backend        string `json:"backend"`
	CustomerKey    string `json:"customer_key"`
	ProviderKey    string `json:"provider_key"`
	ConnectionIP   string `json:"connection_ip"`
	StartPort      int    `json:"start_port"`
	StartQueryPort int    `json:"start_query_port"`

	// Mods: comma-separated Steam Workshop ids, matching the -mods= launch flag.
	Mods string `json:"mods"`

	// Notifications.
	ServerStatusWebhook string `json:"server_status_webhook"`

	// Periodic triggers, seconds.
	ModCheckInterval    int `json:"mod_check_interval"`
	ServerCheckInterval int `json:"server_check_interval"`
	RestartTime         int `json:"restart_time"` // advance-warning grace before automatic cycles

	// When true, every mod-check tick also runs a full binary update first
	// (legacy sequencing). Default is one-cycle-per-tick with server-update
	// priority.
	UpdateBeforeModCheck bool `json:"update_before_mod_check"`
}

// Tile is the immutable per-tile slice of the fleet configuration. Built once
// per config load; a reload produces a fresh set.
type Tile struct {
	Index        int
	ServerID     string // Identifier + Index, e.g. "Disc0oasis3"
	Port         int
	QueryPort    int
	Slots        int
	Backend      string
	CustomerKey  string
	ProviderKey  string
	ConnectionIP string
	Mods         string // comma-separated workshop ids, empty when none
	Executable   string // absolute path to the server binary
	WorkDir      string
}

const defaultServerBinary = "MistServer-Win64-Shipping"

// requiredFields mirrors the critical-field check the fleet refuses to start
// a tile without.
var requiredFields = []struct {
	name string
	set  func(*Fleet) bool
}{
	{"folder_path", func(c *Fleet) bool { return c.FolderPath != "" }},
	{"steam_cmd_path", func(c *Fleet) bool { return c.SteamCmdPath != "" }},
	{"tile_num", func(c *Fleet) bool { return c.TileNum > 0 }},
	{"identifier", func(c *Fleet) bool { return c.Identifier != "" }},
	{"slots", func(c *Fleet) bool { return c.Slots > 0 }},
	{"backend", func(c *Fleet) bool { return c.Backend != "" }},
	{"customer_key", func(c *Fleet) bool { return c.CustomerKey != "" }},
	{"provider_key", func(c *Fleet) bool { return c.ProviderKey != "" }},
	{"connection_ip", func(c *Fleet) bool { return c.ConnectionIP != "" }},
	{"start_port", func(c *Fleet) bool { return c.StartPort > 0 }},
	{"start_query_port", func(c *Fleet) bool { return c.StartQueryPort > 0 }},
	{"server_status_webhook", func(c *Fleet) bool { return c.ServerStatusWebhook != "" }},
}

// LoadFleet reads and validates the fleet configuration. Missing required
// fields yield a single structured error naming all of them, before any tile
// is started.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Fleet{
		ServerBinary:        defaultServerBinary,
		ModCheckInterval:    300,
		ServerCheckInterval: 3600,
		RestartTime:         300,
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing required field in one error, then rejects
// interval values the maintenance loop cannot run on.
func (c *Fleet) Validate() error {
	var missing []string
	for _, f := range requiredFields {
		if !f.set(c) {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing critical configuration: %s", strings.Join(missing, ", "))
	}

	var invalid []string
	if c.ModCheckInterval <= 0 {
		invalid = append(invalid, "mod_check_interval must be positive")
	}
	if c.ServerCheckInterval <= 0 {
		invalid = append(invalid, "server_check_interval must be positive")
	}
	if c.RestartTime < 0 {
		invalid = append(invalid, "restart_time must not be negative")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}
	return nil
}

// Tile derives the immutable per-tile config for index i.
func (c *Fleet) Tile(i int) Tile {
	return Tile{
		Index:        i,
		ServerID:     fmt.Sprintf("%s%d", c.Identifier, i),
		Port:         c.StartPort + i,
		QueryPort:    c.StartQueryPort + i,
		Slots:        c.Slots,
		Backend:      c.Backend,
		CustomerKey:  c.CustomerKey,
		ProviderKey:  c.ProviderKey,
		ConnectionIP: c.ConnectionIP,
		Mods:         c.Mods,
		Executable:   filepath.Join(c.FolderPath, c.ServerBinary),
		WorkDir:      c.FolderPath,
	}
}

// Tiles derives the full immutable tile set.
func (c *Fleet) Tiles() []Tile {
	tiles := make([]Tile, c.TileNum)
	for i := range tiles {
		tiles[i] = c.Tile(i)
	}
	return tiles
}

// ModList splits the comma-separated mod string into ids, dropping empties.
func (c *Fleet) ModList() []string {
	if c.Mods == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(c.Mods, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// LogDir resolves the tile log directory. The game writes its logs under
// Saved/Logs in the install root; FolderPath points at the binary dir inside
// the install root, so the default strips the trailing binary segments.
func (c *Fleet) LogDir() string {
	if c.LogFolder != "" {
		return c.LogFolder
	}
	return filepath.Join(c.installRoot(), "Saved", "Logs")
}

// TileConfigDir is the per-tile game config directory, used for in-game admin
// messages via Game.ini.
func (c *Fleet) TileConfigDir(serverID string) string {
	return filepath.Join(c.installRoot(), "Saved", "Config", "WindowsServer", serverID)
}

// installRoot strips the trailing binary segments off FolderPath, which points
// at the directory holding the server binary inside the install tree.
func (c *Fleet) installRoot() string {
	root := c.FolderPath
	for _, tail := range []string{"Win64", "Binaries"} {
		if filepath.Base(root) == tail {
			root = filepath.Dir(root)
		}
	}
	return root
}

// ModsDir is the game's mod content directory under the install root.
func (c *Fleet) ModsDir() string {
	return filepath.Join(c.installRoot(), "Content", "Mods")
}

func (c *Fleet) ModCheckEvery() time.Duration { return time.Duration(c.ModCheckInterval) * time.Second }

func (c *Fleet) ServerCheckEvery() time.Duration {
	return time.Duration(c.ServerCheckInterval) * time.Second
}

func (c *Fleet) RestartGrace() time.Duration { return time.Duration(c.RestartTime) * time.Second }

// Validate reports the tile fields a launch cannot proceed without.
func (t *Tile) Validate() error {
	var missing []string
	if t.ServerID == "" {
		missing = append(missing, "identifier")
	}
	if t.Executable == "" {
		missing = append(missing, "executable")
	}
	if t.Port <= 0 {
		missing = append(missing, "port")
	}
	if t.QueryPort <= 0 {
		missing = append(missing, "query_port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("tile %d missing critical configuration: %s", t.Index, strings.Join(missing, ", "))
	}
	return nil
}
