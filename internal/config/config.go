package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Notify  NotifyConfig
	Worker  WorkerConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL   string
	ChatModel string
	ToolModel string
}

type StorageConfig struct {
	DataDir string
}

type NotifyConfig struct {
	ScanInterval  time.Duration
	DesktopAlerts bool
}

type WorkerConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4017,
		},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			ChatModel: "llama3.1",
			ToolModel: "llama3.1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Notify: NotifyConfig{
			ScanInterval:  60 * time.Second,
			DesktopAlerts: true,
		},
		Worker: WorkerConfig{
			PollInterval: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing precedence: defaults, the JSON
// file at $XDG_CONFIG_HOME/jobdesk/config.json, then JOBDESK_* environment
// variables. A .env file in the working directory or the config directory
// is loaded first; it never overrides variables already set.
func Load() (Config, error) {
	loadDotEnv(".env", filepath.Join(configDir(), ".env"))
	return loadWith(newFileBackend(ConfigFilePath()))
}

// ConfigFilePath returns the path of the JSON config file.
func ConfigFilePath() string {
	return filepath.Join(configDir(), "config.json")
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not load env file", "path", p, "error", err)
		}
	}
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("invalid config: ollama.base_url is empty")
	}
	if c.Ollama.ChatModel == "" {
		return fmt.Errorf("invalid config: ollama.chat_model is empty")
	}
	if c.Notify.ScanInterval < time.Second {
		return fmt.Errorf("invalid config: notify.scan_interval %s is below 1s", c.Notify.ScanInterval)
	}
	return nil
}

// ToolModel returns the model for career tools, falling back to the chat model.
func (c Config) ToolModel() string {
	if c.Ollama.ToolModel != "" {
		return c.Ollama.ToolModel
	}
	return c.Ollama.ChatModel
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
