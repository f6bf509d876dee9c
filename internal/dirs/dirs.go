// Package dirs resolves the application's XDG base directories. The
// resulting struct is passed around explicitly so tests can point every
// consumer at fabricated directories instead of the real home.
package dirs

import (
	"fmt"
	"os"
	"path/filepath"
)

// BaseDirs holds the application-scoped config, cache, and state homes.
type BaseDirs struct {
	ConfigHome string
	CacheHome  string
	StateHome  string
}

// New resolves the base directories for the given application prefix,
// honoring XDG_CONFIG_HOME, XDG_CACHE_HOME, and XDG_STATE_HOME with the
// usual home-relative fallbacks.
func New(prefix string) (*BaseDirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	return &BaseDirs{
		ConfigHome: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config")), prefix),
		CacheHome:  filepath.Join(envOr("XDG_CACHE_HOME", filepath.Join(home, ".cache")), prefix),
		StateHome:  filepath.Join(envOr("XDG_STATE_HOME", filepath.Join(home, ".local", "state")), prefix),
	}, nil
}

// FindConfigFile returns the path of name under the config home if it
// exists.
func (d *BaseDirs) FindConfigFile(name string) (string, bool) {
	path := filepath.Join(d.ConfigHome, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// PlaceCacheFile returns the path for name under the cache home, creating
// parent directories as needed. The file itself is not created.
func (d *BaseDirs) PlaceCacheFile(name string) (string, error) {
	return place(d.CacheHome, name)
}

// PlaceStateFile returns the path for name under the state home, creating
// parent directories as needed. The file itself is not created.
func (d *BaseDirs) PlaceStateFile(name string) (string, error) {
	return place(d.StateHome, name)
}

func place(home, name string) (string, error) {
	path := filepath.Join(home, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
