// Package config loads the daemon-level configuration: where the vault
// lives, where data files go and how to log. User-facing assistant
// settings live in the settings package, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration.
type Config struct {
	// VaultPath is the note vault directory to watch.
	VaultPath string `toml:"vault_path"`
	// DataDir holds the settings record, conversation collection and
	// stats database.
	DataDir string `toml:"data_dir"`

	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := "./data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".vault-assistant")
	}
	return Config{
		VaultPath: ".",
		DataDir:   dataDir,
		LogLevel:  "info",
		LogPretty: true,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.toml"
	}
	return filepath.Join(home, ".vault-assistant", "config.toml")
}

// Load reads a TOML config file over the defaults. A missing file yields
// the defaults; the VAULT_ASSISTANT_VAULT environment variable overrides
// the vault path either way.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if v := os.Getenv("VAULT_ASSISTANT_VAULT"); v != "" {
		cfg.VaultPath = v
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// SettingsPath returns the settings record location under the data dir.
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// ConversationsPath returns the conversation collection location.
func (c Config) ConversationsPath() string {
	return filepath.Join(c.DataDir, "conversations.json")
}

// StatsPath returns the usage-stats database location.
func (c Config) StatsPath() string {
	return filepath.Join(c.DataDir, "stats.db")
}
