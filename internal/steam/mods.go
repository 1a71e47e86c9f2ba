package steam

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ModsInfo maps a workshop id to the last-updated unix time the fleet has
// installed. It is persisted as a flat JSON object.
type ModsInfo map[string]int64

// LoadModsInfo reads the persisted mod state. A missing or corrupt file is
// treated as empty so every configured mod looks stale and gets reinstalled.
func LoadModsInfo(log *zap.Logger, path string) ModsInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("cannot read mods info, starting empty", zap.String("path", path), zap.Error(err))
		}
		return ModsInfo{}
	}
	var info ModsInfo
	if err := json.Unmarshal(data, &info); err != nil {
		log.Warn("mods info corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return ModsInfo{}
	}
	return info
}

// SaveModsInfo writes the whole mod state in one shot.
func SaveModsInfo(path string, info ModsInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Checker compares installed mod versions against the Workshop API.
type Checker struct {
	log      *zap.Logger
	client   *WorkshopClient
	infoPath string
}

// NewChecker builds a checker persisting state at infoPath.
func NewChecker(log *zap.Logger, client *WorkshopClient, infoPath string) *Checker {
	return &Checker{log: log.Named("modcheck"), client: client, infoPath: infoPath}
}

// CheckUpdates returns the workshop ids whose published version is newer than
// what is installed, plus the refreshed state to persist once those ids have
// actually been downloaded. A mod Steam no longer reports is skipped.
func (c *Checker) CheckUpdates(ctx context.Context, workshopIDs []string) (stale []string, updated ModsInfo, err error) {
	if len(workshopIDs) == 0 {
		return nil, ModsInfo{}, nil
	}

	installed := LoadModsInfo(c.log, c.infoPath)
	latest, err := c.client.PublishedFileUpdateTimes(ctx, workshopIDs)
	if err != nil {
		return nil, nil, err
	}

	updated = make(ModsInfo, len(workshopIDs))
	for _, id := range workshopIDs {
		t, ok := latest[id]
		if !ok {
			// keep whatever we had; no basis to call it stale
			if have, seen := installed[id]; seen {
				updated[id] = have
			}
			continue
		}
		updated[id] = t
		if have, seen := installed[id]; !seen || have != t {
			c.log.Info("mod update available",
				zap.String("workshop_id", id), zap.Int64("time_updated", t))
			stale = append(stale, id)
		}
	}
	return stale, updated, nil
}

// Installer downloads stale mods and syncs the active set into the server's
// mods directory.
type Installer struct {
	log      *zap.Logger
	runner   *CmdRunner
	modsDir  string
	infoPath string
}

// NewInstaller builds an installer targeting the server's mods directory.
func NewInstaller(log *zap.Logger, runner *CmdRunner, modsDir, infoPath string) *Installer {
	return &Installer{log: log.Named("modinstall"), runner: runner, modsDir: modsDir, infoPath: infoPath}
}

// Install downloads each stale mod, rebuilds the mods directory from the full
// active set, and only then persists the refreshed state. A failed download is
// logged and skipped so one broken mod does not block the rest; its entry is
// dropped from the persisted state so the next check retries it.
func (i *Installer) Install(ctx context.Context, staleIDs, activeIDs []string, updated ModsInfo) error {
	for _, id := range staleIDs {
		if err := i.runner.DownloadWorkshopItem(ctx, id); err != nil {
			i.log.Error("mod download failed", zap.String("workshop_id", id), zap.Error(err))
			delete(updated, id)
		}
	}

	if err := os.RemoveAll(i.modsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(i.modsDir, 0o755); err != nil {
		return err
	}

	contentDir := i.runner.WorkshopContentDir()
	for _, id := range activeIDs {
		src := filepath.Join(contentDir, id)
		if _, err := os.Stat(src); err != nil {
			i.log.Warn("mod content missing, skipping", zap.String("workshop_id", id), zap.Error(err))
			continue
		}
		dst := filepath.Join(i.modsDir, id)
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			i.log.Error("mod copy failed", zap.String("workshop_id", id), zap.Error(err))
			continue
		}
		if err := activateModInfo(filepath.Join(dst, "modinfo.json")); err != nil {
			i.log.Warn("cannot mark mod active", zap.String("workshop_id", id), zap.Error(err))
		}
		i.log.Info("mod installed", zap.String("workshop_id", id))
	}

	return SaveModsInfo(i.infoPath, updated)
}

// activateModInfo flips the active flag in a mod's modinfo.json so the game
// loads it. Absence of the file is not an error; not every mod ships one.
func activateModInfo(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	meta["active"] = true
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
