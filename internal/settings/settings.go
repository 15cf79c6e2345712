// Package settings persists user-facing application preferences.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const stateKey = "settings"

// Settings are the user's app preferences.
type Settings struct {
	DisplayName   string `json:"display_name"`
	DesktopAlerts bool   `json:"desktop_alerts"`
}

// Defaults returns the settings used when nothing is persisted.
func Defaults() Settings {
	return Settings{DesktopAlerts: true}
}

// Persister is the key/value storage the Manager needs.
type Persister interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Manager reads and writes settings.
type Manager struct {
	store Persister

	mu  sync.RWMutex
	cur Settings
}

// NewManager loads settings. Missing or corrupt state yields Defaults.
func NewManager(store Persister) *Manager {
	m := &Manager{store: store, cur: Defaults()}
	raw, err := store.GetState(stateKey)
	if err != nil {
		return m
	}
	s := Defaults()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		slog.Warn("malformed persisted settings, using defaults", "error", err)
		return m
	}
	m.cur = s
	return m
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Save replaces the settings.
func (m *Manager) Save(s Settings) (Settings, error) {
	s.DisplayName = strings.TrimSpace(s.DisplayName)

	data, err := json.Marshal(s)
	if err != nil {
		return Settings{}, fmt.Errorf("marshalling settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetState(stateKey, string(data)); err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	m.cur = s
	return s, nil
}

// Reset restores defaults in memory after a data purge.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.cur = Defaults()
	m.mu.Unlock()
}

// DisplayName returns the configured name, or fallback when unset.
func (m *Manager) DisplayName(fallback string) string {
	if n := m.Get().DisplayName; n != "" {
		return n
	}
	return fallback
}
