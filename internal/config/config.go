// Package config loads fp settings from defaults, config.toml, FORMPAL_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Broadcast modes.
const (
	BroadcastLocal     = "local"
	BroadcastWebSocket = "websocket"
	BroadcastNone      = "none"
)

// FileName is the config file looked up in the home directory.
const FileName = "config.toml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Home      string
	Store     StoreConfig
	Broadcast BroadcastConfig
	Hub       HubConfig
	Autofill  AutofillConfig
	Log       LogConfig
}

// StoreConfig selects and tunes the item store.
type StoreConfig struct {
	Backend  string
	Path     string
	Timeout  time.Duration
	Debounce time.Duration
}

// BroadcastConfig selects how contexts announce changes.
type BroadcastConfig struct {
	Mode string
	URL  string
}

// HubConfig configures the websocket relay.
type HubConfig struct {
	Port int
}

// AutofillConfig configures field scanning.
type AutofillConfig struct {
	Groups []string
}

// LogConfig configures component logging.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	Verbose    bool
}

// Home returns the fp home directory: $FORMPAL_HOME, else ~/.formpal.
func Home() string {
	if home := os.Getenv("FORMPAL_HOME"); home != "" {
		return home
	}
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".formpal")
	}
	return ".formpal"
}

// New returns a viper instance with defaults, config file lookup and
// environment binding set up for home.
func New(home string) *viper.Viper {
	v := viper.New()

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("store.debounce", "100ms")
	v.SetDefault("broadcast.mode", BroadcastLocal)
	v.SetDefault("broadcast.url", "ws://localhost:7733/ws")
	v.SetDefault("hub.port", 7733)
	v.SetDefault("autofill.groups", []string{"question answers", "cover letter"})
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.verbose", false)

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(home)

	v.SetEnvPrefix("FORMPAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if present, and resolves the configuration.
func Load(v *viper.Viper, home string) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Home: home,
		Store: StoreConfig{
			Backend:  strings.ToLower(v.GetString("store.backend")),
			Path:     v.GetString("store.path"),
			Timeout:  v.GetDuration("store.timeout"),
			Debounce: v.GetDuration("store.debounce"),
		},
		Broadcast: BroadcastConfig{
			Mode: strings.ToLower(v.GetString("broadcast.mode")),
			URL:  v.GetString("broadcast.url"),
		},
		Hub:      HubConfig{Port: v.GetInt("hub.port")},
		Autofill: AutofillConfig{Groups: v.GetStringSlice("autofill.groups")},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			Verbose:    v.GetBool("log.verbose"),
		},
	}

	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case BackendSQLite:
			cfg.Store.Path = filepath.Join(home, "items.db")
		case BackendFile:
			cfg.Store.Path = filepath.Join(home, "items")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend)
	}
	switch c.Broadcast.Mode {
	case BroadcastLocal, BroadcastNone:
	case BroadcastWebSocket:
		if c.Broadcast.URL == "" {
			return fmt.Errorf("%w: broadcast.url is required for websocket mode", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown broadcast.mode %q", ErrInvalid, c.Broadcast.Mode)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("%w: store.timeout must be positive", ErrInvalid)
	}
	if c.Hub.Port < 0 || c.Hub.Port > 65535 {
		return fmt.Errorf("%w: hub.port %d out of range", ErrInvalid, c.Hub.Port)
	}
	if len(c.Autofill.Groups) == 0 {
		return fmt.Errorf("%w: autofill.groups must not be empty", ErrInvalid)
	}
	return nil
}

// fileLayout is the on-disk shape of config.toml.
type fileLayout struct {
	Store struct {
		Backend  string `toml:"backend"`
		Path     string `toml:"path"`
		Timeout  string `toml:"timeout"`
		Debounce string `toml:"debounce"`
	} `toml:"store"`
	Broadcast struct {
		Mode string `toml:"mode"`
		URL  string `toml:"url"`
	} `toml:"broadcast"`
	Hub struct {
		Port int `toml:"port"`
	} `toml:"hub"`
	Autofill struct {
		Groups []string `toml:"groups"`
	} `toml:"autofill"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		Verbose    bool   `toml:"verbose"`
	} `toml:"log"`
}

// WriteFile writes c to path as TOML. An existing file is only replaced
// when force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var layout fileLayout
	layout.Store.Backend = c.Store.Backend
	layout.Store.Path = c.Store.Path
	layout.Store.Timeout = c.Store.Timeout.String()
	layout.Store.Debounce = c.Store.Debounce.String()
	layout.Broadcast.Mode = c.Broadcast.Mode
	layout.Broadcast.URL = c.Broadcast.URL
	layout.Hub.Port = c.Hub.Port
	layout.Autofill.Groups = c.Autofill.Groups
	layout.Log.File = c.Log.File
	layout.Log.MaxSizeMB = c.Log.MaxSizeMB
	layout.Log.MaxBackups = c.Log.MaxBackups
	layout.Log.Verbose = c.Log.Verbose

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(layout); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
