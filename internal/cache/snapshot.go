package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

const snapshotVersion = 1

// SnapshotFileName is the result cache snapshot name inside a cache directory.
const SnapshotFileName = "results.json"

type snapshot struct {
	Version int                     `json:"version"`
	Entries map[string]*ResultEntry `json:"entries"`
}

// DefaultCacheDir returns the default cache directory.
func DefaultCacheDir() (string, error) {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "codeguardian"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cache", "codeguardian"), nil
}

// SaveSnapshot writes every entry to path as JSON. The file is replaced
// atomically.
func (c *ResultCache) SaveSnapshot(path string) error {
	snap := snapshot{Version: snapshotVersion, Entries: make(map[string]*ResultEntry)}
	c.guard.do("result cache snapshot", func() {
		for p, e := range c.entries {
			cp := *e
			cp.Findings = append([]finding.Finding(nil), e.Findings...)
			snap.Entries[p] = &cp
		}
	})

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	return writeFileAtomic(path, data, 0o600)
}

// LoadSnapshot inserts the entries stored at path and returns how many
// were loaded. A missing file loads nothing. Loaded entries are validated
// against the file system lazily, on Get.
func (c *ResultCache) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- snapshot path comes from configuration
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCachedValue, err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: snapshot version %d", ErrInvalidCachedValue, snap.Version)
	}

	for p, e := range snap.Entries {
		if e == nil {
			continue
		}
		md := FileMetadata{Hash: e.FileHash, ModifiedTime: e.ModifiedTime, Size: e.FileSize}
		c.insert(p, md, e.Findings, e.ConfigHash, e.AnalysisDurationMs, e.LastAccessed, max(e.AccessCount, 1))
	}
	return len(snap.Entries), nil
}

// writeFileAtomic writes to a temp file first, then renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}
