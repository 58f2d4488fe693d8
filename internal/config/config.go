// Package config loads the TOML configuration, creating it with defaults on
// first launch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// AppName is the configuration directory name.
	AppName = "todo"

	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "todo.db"
	DefaultLogName        = "todo.log"
	DefaultSyncInterval   = 500

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "TODO_CONFIG"
)

type Keymap struct {
	Quit      string `toml:"quit"`
	Add       string `toml:"add"`
	Up        string `toml:"up"`
	Down      string `toml:"down"`
	Toggle    string `toml:"toggle"`
	Delete    string `toml:"delete"`
	Reload    string `toml:"reload"`
	Logout    string `toml:"logout"`
	Confirm   string `toml:"confirm"`
	Cancel    string `toml:"cancel"`
	NextField string `toml:"next_field"`
	Register  string `toml:"register"`
}

type Config struct {
	DBPath         string `toml:"db_path"`
	LogFile        string `toml:"log_file"`
	LogLevel       string `toml:"log_level"`
	SyncIntervalMS int    `toml:"sync_interval_ms"`
	Keys           Keymap `toml:"keys"`
}

// SyncInterval is how often storage polls for writes made by other processes.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}

// Validate rejects values LoadOrCreate cannot default.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.SyncIntervalMS <= 0 {
		return fmt.Errorf("sync_interval_ms must be positive, got %d", c.SyncIntervalMS)
	}
	return nil
}

// ResolveConfigPath returns $TODO_CONFIG if set, otherwise config.toml in
// DefaultConfigDir.
func ResolveConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), DefaultConfigFileName)
}

// DefaultConfigDir uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// LoadOrCreate reads path, writing defaults first if it does not exist.
// Relative db_path and log_file are resolved against the config directory.
func LoadOrCreate(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return resolvePaths(path, cfg), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBName
	}
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultLogName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SyncIntervalMS == 0 {
		cfg.SyncIntervalMS = DefaultSyncInterval
	}
	cfg.Keys = withDefaultKeys(cfg.Keys)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return resolvePaths(path, cfg), nil
}

func write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func resolvePaths(configPath string, cfg Config) Config {
	dir := filepath.Dir(configPath)
	if !filepath.IsAbs(cfg.DBPath) && !strings.HasPrefix(cfg.DBPath, "file:") {
		cfg.DBPath = filepath.Join(dir, cfg.DBPath)
	}
	if !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(dir, cfg.LogFile)
	}
	return cfg
}

func withDefaultKeys(k Keymap) Keymap {
	d := defaultConfig().Keys
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&k.Quit, d.Quit)
	fill(&k.Add, d.Add)
	fill(&k.Up, d.Up)
	fill(&k.Down, d.Down)
	fill(&k.Toggle, d.Toggle)
	fill(&k.Delete, d.Delete)
	fill(&k.Reload, d.Reload)
	fill(&k.Logout, d.Logout)
	fill(&k.Confirm, d.Confirm)
	fill(&k.Cancel, d.Cancel)
	fill(&k.NextField, d.NextField)
	fill(&k.Register, d.Register)
	return k
}

func defaultConfig() Config {
	return Config{
		DBPath:         DefaultDBName,
		LogFile:        DefaultLogName,
		LogLevel:       "info",
		SyncIntervalMS: DefaultSyncInterval,
		Keys: Keymap{
			Quit:      "q",
			Add:       "a",
			Up:        "k",
			Down:      "j",
			Toggle:    " ",
			Delete:    "d",
			Reload:    "r",
			Logout:    "o",
			Confirm:   "enter",
			Cancel:    "esc",
			NextField: "tab",
			Register:  "ctrl+r",
		},
	}
}
