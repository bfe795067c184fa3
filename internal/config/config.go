package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the ~/.rve/config.toml file.
type Config struct {
	DefaultRootfs string `toml:"default_rootfs,omitempty" json:"default_rootfs"`
	Terminal      Terminal `toml:"terminal,omitempty" json:"terminal"`
	Memory        Memory   `toml:"memory,omitempty" json:"memory"`
}

// Terminal holds the guest terminal dimensions reported to TIOCGWINSZ.
type Terminal struct {
	Rows int `toml:"rows,omitempty" json:"rows"`
	Cols int `toml:"cols,omitempty" json:"cols"`
}

// Memory holds the anonymous-mapping backend preference, carried over
// conceptually from the teacher's VMConfig.UseUffd toggle.
type Memory struct {
	PreferHugePages bool `toml:"prefer_huge_pages,omitempty" json:"prefer_huge_pages"`
}

// configDirOverride is set by the --config-dir flag or RVE_HOME env var.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir / RVE_HOME value.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// RVEHome returns the config directory path.
// Precedence: --config-dir flag / SetConfigDir > RVE_HOME env > ~/.rve
func RVEHome() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("RVE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".rve")
	}
	return filepath.Join(home, ".rve")
}

// ConfigPath returns the full path to config.toml.
func ConfigPath() string {
	return filepath.Join(RVEHome(), "config.toml")
}

// EnsureDir creates the rve home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(RVEHome(), 0o755)
}

// Load reads config.toml and returns a Config struct.
// If the file does not exist, it returns the defaults: no default rootfs, a
// 24x80 terminal, and PreferHugePages false.
func Load() (*Config, error) {
	cfg := &Config{Terminal: Terminal{Rows: 24, Cols: 80}}
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	if cfg.Terminal.Rows == 0 {
		cfg.Terminal.Rows = 24
	}
	if cfg.Terminal.Cols == 0 {
		cfg.Terminal.Cols = 80
	}
	return cfg, nil
}

// Save writes the Config struct back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// validKeys lists the dot-separated keys that can be used with Get/Set.
var validKeys = map[string]bool{
	"default_rootfs":        true,
	"terminal.rows":         true,
	"terminal.cols":         true,
	"memory.prefer_huge_pages": true,
}

// Get retrieves a single config value by dot-separated key.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return getField(cfg, key)
}

// Set sets a single config value by dot-separated key.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	if err := setField(cfg, key, value); err != nil {
		return err
	}
	return Save(cfg)
}

func getField(cfg *Config, key string) (string, error) {
	switch key {
	case "default_rootfs":
		return cfg.DefaultRootfs, nil
	case "terminal.rows":
		return fmt.Sprintf("%d", cfg.Terminal.Rows), nil
	case "terminal.cols":
		return fmt.Sprintf("%d", cfg.Terminal.Cols), nil
	case "memory.prefer_huge_pages":
		return fmt.Sprintf("%t", cfg.Memory.PreferHugePages), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "default_rootfs":
		cfg.DefaultRootfs = value
	case "terminal.rows":
		var rows int
		if _, err := fmt.Sscanf(value, "%d", &rows); err != nil {
			return fmt.Errorf("terminal.rows must be an integer: %w", err)
		}
		cfg.Terminal.Rows = rows
	case "terminal.cols":
		var cols int
		if _, err := fmt.Sscanf(value, "%d", &cols); err != nil {
			return fmt.Errorf("terminal.cols must be an integer: %w", err)
		}
		cfg.Terminal.Cols = cols
	case "memory.prefer_huge_pages":
		cfg.Memory.PreferHugePages = value == "true" || value == "1"
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
