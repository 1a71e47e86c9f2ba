// Package steam wraps the fleet's external Steam collaborators: steamcmd for
// server-binary updates and workshop downloads, and the Workshop web API for
// mod version checks. Every call is bounded and failure-tolerant; a broken
// Steam never takes the fleet down.
package steam

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ServerAppID is the Last Oasis dedicated-server Steam app.
	ServerAppID = "920720"
	// WorkshopAppID is the Last Oasis workshop content app.
	WorkshopAppID = "903950"

	steamCmdBinary = "steamcmd.sh"

	updateTimeout   = 30 * time.Minute
	checkTimeout    = 5 * time.Minute
	downloadTimeout = 15 * time.Minute
)

// steamcmd is chatty; these phrases are dropped from collected output so the
// interesting lines (errors, update state) stay visible.
var boilerplate = []string{
	"loading steam api...",
	"connecting anonymously to steam public...",
	"logged in ok",
	"waiting for client config...",
	"downloading item",
	"success! app '" + ServerAppID + "'",
	"success! item",
}

// CmdRunner invokes steamcmd from its configured install directory.
type CmdRunner struct {
	log *zap.Logger
	dir string
}

// NewCmdRunner builds a runner over the steamcmd install dir.
func NewCmdRunner(log *zap.Logger, dir string) *CmdRunner {
	return &CmdRunner{log: log.Named("steamcmd"), dir: dir}
}

// UpdateServer runs a validated update of the dedicated-server binaries.
func (r *CmdRunner) UpdateServer(ctx context.Context) error {
	r.log.Info("starting server update via steamcmd")
	_, err := r.run(ctx, "steam update", updateTimeout, "+app_update", ServerAppID, "validate")
	if err != nil {
		return err
	}
	r.log.Info("server update completed")
	return nil
}

// CheckServerUpdate queries Steam for the server app's install state and
// reports whether an update is required.
func (r *CmdRunner) CheckServerUpdate(ctx context.Context) (bool, error) {
	r.log.Info("checking for server updates")
	out, err := r.run(ctx, "steam update check", checkTimeout, "+app_info_update", "1", "+app_info_print", ServerAppID)
	if err != nil {
		return false, err
	}
	if strings.Contains(out, "Update Required") || strings.Contains(out, "Update required") {
		r.log.Info("server update available")
		return true, nil
	}
	r.log.Info("no server updates detected")
	return false, nil
}

// DownloadWorkshopItem fetches one workshop mod into steamcmd's content dir.
func (r *CmdRunner) DownloadWorkshopItem(ctx context.Context, workshopID string) error {
	_, err := r.run(ctx, "workshop download "+workshopID, downloadTimeout,
		"+workshop_download_item", WorkshopAppID, workshopID)
	return err
}

// WorkshopContentDir is where steamcmd places downloaded workshop items.
func (r *CmdRunner) WorkshopContentDir() string {
	return filepath.Join(r.dir, "steamapps", "workshop", "content", WorkshopAppID)
}

// run executes steamcmd with an anonymous login, streaming and filtering its
// output. Returns the filtered output; a non-zero exit or timeout is an error.
func (r *CmdRunner) run(ctx context.Context, label string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{"+login", "anonymous"}, args...)
	argv = append(argv, "+quit")
	cmd := exec.CommandContext(ctx, filepath.Join(r.dir, steamCmdBinary), argv...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%s: stdout pipe: %w", label, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}

	var lines []string
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r.log.Debug(label, zap.String("output", line))
		if !isBoilerplate(line) {
			lines = append(lines, line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			r.log.Error(label+" failed", zap.Error(err), zap.String("stderr", msg))
		}
		return strings.Join(lines, "\n"), fmt.Errorf("%s: %w", label, err)
	}
	return strings.Join(lines, "\n"), nil
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, skip := range boilerplate {
		if strings.Contains(lower, skip) {
			return true
		}
	}
	return false
}
