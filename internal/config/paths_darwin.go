//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "jobdesk")
	}
	return "jobdesk-data"
}

// XDG_CONFIG_HOME is honoured on macOS too so dotfile setups keep working.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "jobdesk")
	}
	return defaultDataDir()
}
