package app

import (
	"errors"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds runtime options. All fields have working defaults; invalid
// values are repaired to them rather than aborting startup.
type Config struct {
	LogLevel    string `toml:"log_level"`
	AutoConnect bool   `toml:"auto_connect"`
	RekeyAfter  int    `toml:"rekey_after"`
	ChunkSize   int    `toml:"chunk_size"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		AutoConnect: true,
		RekeyAfter:  100,
		ChunkSize:   64 * 1024,
	}
}

// LoadConfig reads a TOML config file. A missing file yields the
// defaults; unparseable content is an error; out-of-range values are
// repaired to their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}
	cfg.repair()
	return cfg, nil
}

// repair keeps valid values and resets invalid ones, so a partially
// broken file still starts the app.
func (c *Config) repair() {
	def := DefaultConfig()
	if c.RekeyAfter <= 0 {
		c.RekeyAfter = def.RekeyAfter
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
