package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const diskFormatVersion = 1

// DiskCache persists the whole cache as a single JSON snapshot file
type DiskCache struct {
	path string
}

// NewDiskCache creates a new disk backend writing to path
func NewDiskCache(path string) *DiskCache {
	return &DiskCache{path: path}
}

type diskSnapshot struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Load reads the snapshot. A missing file is an empty cache, not an error.
func (c *DiskCache) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var snap diskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", c.path, err)
	}
	if snap.Version != diskFormatVersion {
		return nil, fmt.Errorf("cache file %s has version %d, want %d", c.path, snap.Version, diskFormatVersion)
	}
	if snap.Entries == nil {
		snap.Entries = map[string]Entry{}
	}

	return snap.Entries, nil
}

// Save writes the full snapshot to a temp file and renames it into place,
// so readers never observe a partial file
func (c *DiskCache) Save(all map[string]Entry, _ map[string]Entry) error {
	data, err := json.Marshal(diskSnapshot{Version: diskFormatVersion, Entries: all})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}

	return nil
}

// Close is a no-op; the snapshot file is not held open
func (c *DiskCache) Close() error {
	return nil
}
