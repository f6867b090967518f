// Package config loads ventricle settings from defaults, an optional YAML
// file and VENTRICLE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pevans/ventricle/fetch"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// VENTRICLE_SCHEDULER_CONCURRENCY.
const EnvPrefix = "VENTRICLE"

// Config is the full application configuration.
type Config struct {
	PulsesDir string          `mapstructure:"pulses_dir"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
}

// StorageConfig locates the record database and item directory.
type StorageConfig struct {
	RecordsDSN string `mapstructure:"records_dsn"`
	ItemsDir   string `mapstructure:"items_dir"`
}

// SchedulerConfig tunes ticking and file watching.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

// FetchConfig tunes outbound HTTP requests.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// APIConfig controls the optional HTTP API.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// defaultSettings is the nested default tree. It is also what `init`
// writes to disk.
func defaultSettings() map[string]any {
	return map[string]any{
		"pulses_dir": "~/.ventricle/pulses",
		"storage": map[string]any{
			"records_dsn": "~/.ventricle/records.db",
			"items_dir":   "~/.ventricle/items",
		},
		"scheduler": map[string]any{
			"tick_interval": "1m",
			"concurrency":   1,
			"debounce":      "250ms",
		},
		"fetch": map[string]any{
			"timeout":    "30s",
			"user_agent": fetch.DefaultUserAgent,
		},
		"log": map[string]any{
			"level":       "info",
			"development": false,
		},
		"api": map[string]any{
			"enabled": false,
			"addr":    "127.0.0.1:7474",
		},
	}
}

// setDefaults registers every leaf of the default tree under its dotted
// key so environment overrides apply to nested settings.
func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Dir returns ~/.ventricle.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ventricle"), nil
}

// DefaultPath returns ~/.ventricle/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration. An explicit path must exist; with an empty
// path ~/.ventricle/config.yaml is read if present and skipped otherwise.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, "", defaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(defaultPath); err == nil {
			path = defaultPath
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	var err error
	if c.PulsesDir, err = ExpandHome(c.PulsesDir); err != nil {
		return err
	}
	if c.Storage.RecordsDSN, err = ExpandHome(c.Storage.RecordsDSN); err != nil {
		return err
	}
	if c.Storage.ItemsDir, err = ExpandHome(c.Storage.ItemsDir); err != nil {
		return err
	}

	if c.PulsesDir == "" {
		return errors.New("pulses_dir must not be empty")
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %s", c.Scheduler.TickInterval)
	}
	if c.Scheduler.Concurrency < 1 {
		c.Scheduler.Concurrency = 1
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
