package tilecmd

import "github.com/Disc0-0/LOmanGUI-Full/internal/config"

// BuildArgs constructs the argv for launching one tile.
//
// Ordering mirrors the documented server invocation so diffs against operator
// notes stay readable:
//
//	<exe> -identifier=<prefix><i> -port=<p> -QueryPort=<q> \
//	      -log -messaging -noupnp -NoLiveServer -EnableCheats \
//	      -backendapiurloverride=... -CustomerKey=... -ProviderKey=... \
//	      -slots=<n> -OverrideConnectionAddress=<ip> [-mods=<ids>]
//
// The -mods flag is emitted only when the tile has a mod list.
func BuildArgs(t config.Tile) []string {
	return NewBuilder(t.Executable).
		WithValue("identifier", t.ServerID).
		WithInt("port", t.Port).
		WithInt("QueryPort", t.QueryPort).
		WithSwitch("log").
		WithSwitch("messaging").
		WithSwitch("noupnp").
		WithSwitch("NoLiveServer").
		WithSwitch("EnableCheats").
		WithValue("backendapiurloverride", t.Backend).
		WithValue("CustomerKey", t.CustomerKey).
		WithValue("ProviderKey", t.ProviderKey).
		WithInt("slots", t.Slots).
		WithValue("OverrideConnectionAddress", t.ConnectionIP).
		WithValue("mods", t.Mods).
		BuildArgv()
}

// BuildString is the shell-quoted projection of BuildArgs, for logging.
func BuildString(t config.Tile) string {
	args := BuildArgs(t)
	b := &Builder{args: args}
	return b.BuildString()
}
