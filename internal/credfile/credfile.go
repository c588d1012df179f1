// Package credfile handles reading and writing the credential cache file.
// The cache file stores the last known access/refresh token pair alongside
// the refresh timestamp, and acts as the fallback credential source when the
// environment does not supply a field. This is a leaf package imported by
// credential/ so the manager never touches the filesystem directly.
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilePerms restricts the cache file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// File is the on-disk format for the credential cache.
// RefreshToken is a pointer so legacy access-token-only deployments
// round-trip as JSON null rather than an empty string.
type File struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	LastRefresh  string  `json:"last_refresh"`
}

// Cache is the decoded form handed to callers.
type Cache struct {
	AccessToken  string
	RefreshToken string
	LastRefresh  time.Time
}

// Load reads the credential cache from disk. Returns (nil, nil) if the file
// does not exist; a missing cache is not an error, it just means the
// environment is the only source.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credfile: decoding %s: %w", path, err)
	}

	c := &Cache{AccessToken: f.AccessToken}

	if f.RefreshToken != nil {
		c.RefreshToken = *f.RefreshToken
	}

	if f.LastRefresh != "" {
		t, parseErr := time.Parse(time.RFC3339, f.LastRefresh)
		if parseErr != nil {
			return nil, fmt.Errorf("credfile: parsing last_refresh in %s: %w", path, parseErr)
		}

		c.LastRefresh = t
	}

	return c, nil
}

// Save writes the credential cache to disk atomically (write-to-temp + rename)
// with 0600 permissions. A reader concurrent with Save observes either the old
// file or the new one, never a truncated mix. Never logs token values.
func Save(path string, c *Cache) error {
	f := File{AccessToken: c.AccessToken}

	if c.RefreshToken != "" {
		rt := c.RefreshToken
		f.RefreshToken = &rt
	}

	if !c.LastRefresh.IsZero() {
		f.LastRefresh = c.LastRefresh.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close and
	// rename cannot leave an empty or partial cache file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}
