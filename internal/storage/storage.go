// Package storage is the local-device persistence layer: one JSON file
// per key under the platform config directory. Everything stored here is
// advisory; loads tolerate missing or corrupt files by reporting absence.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	KeyAutosave    = "autosave"
	KeyUndoMirror  = "undo_mirror"
	KeyRedoMirror  = "redo_mirror"
	KeyPreferences = "preferences"
)

// Store reads and writes JSON values under a config directory.
type Store struct {
	configDir string
}

func NewStore() (*Store, error) {
	dir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: dir}, nil
}

func NewStoreWithDir(dir string) *Store {
	return &Store{configDir: dir}
}

// getConfigDir returns the platform-specific config directory.
func getConfigDir() (string, error) {
	// Allow override for testing
	if testDir := os.Getenv("PIXSTUDIO_CONFIG_DIR"); testDir != "" {
		return testDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "pixstudio"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "pixstudio"), nil
	default: // linux and others
		// Follow XDG Base Directory Specification
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "pixstudio"), nil
	}
}

func (s *Store) Dir() string {
	return s.configDir
}

func (s *Store) path(key string) string {
	// Keys are fixed identifiers, but keep path traversal out anyway.
	clean := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.configDir, clean+".json")
}

// Put serializes v under key. Failures are real errors; callers that
// treat persistence as best-effort decide whether to surface them.
func (s *Store) Put(key string, v any) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path(key), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Get deserializes key into out. A missing or unparseable file reports
// (false, nil): persisted JSON is untrusted and degrades to absence, it
// never crashes the caller.
func (s *Store) Get(key string, out any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
