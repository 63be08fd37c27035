package config

import (
	"os"
	"path/filepath"
)

// DefaultPath returns ~/.config/volume-watcher/settings.yaml (or a CWD fallback).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "volume-watcher", "settings.yaml")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "volume-watcher-settings.yaml")
}

// DefaultLockPath returns the single-instance lock file next to the settings.
func DefaultLockPath(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), "volume-watcher.lock")
}
