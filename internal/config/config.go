// Package config loads settings from ~/.clipboard-history/config.yaml,
// CLIPHIST_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file name (without extension)
	ConfigFileName = "config"

	// ConfigDir is the directory for config, database and PID files
	ConfigDir = ".clipboard-history"

	// EnvPrefix prefixes environment overrides, e.g. CLIPHIST_STORAGE_MAX_ITEMS
	EnvPrefix = "CLIPHIST"
)

// Config holds application configuration
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Capture CaptureConfig `mapstructure:"capture"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`

	// MaxItems overrides the cap saved in the database; 0 keeps the saved one
	MaxItems int `mapstructure:"max_items"`
}

type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type CaptureConfig struct {
	// ExtraTypes enables file, URL, image and video capture
	ExtraTypes bool `mapstructure:"extra_types"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	Replace bool `mapstructure:"replace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"dir":           "storage.path",
	"max-items":     "storage.max_items",
	"poll-interval": "monitor.poll_interval",
	"extra-types":   "capture.extra_types",
	"server":        "server.enabled",
	"port":          "server.port",
	"replace":       "server.replace",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// DefaultDir returns ~/.clipboard-history, or a relative directory if the
// home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ConfigDir)
}

// Loader reads configuration from one directory
type Loader struct {
	v   *viper.Viper
	dir string
	mu  sync.Mutex
}

// NewLoader creates a loader for dir; empty dir means DefaultDir
func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = DefaultDir()
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("storage.path", dir)
	v.SetDefault("storage.max_items", 0)
	v.SetDefault("monitor.poll_interval", 500*time.Millisecond)
	v.SetDefault("capture.extra_types", false)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 54321)
	v.SetDefault("server.replace", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	return &Loader{v: v, dir: dir}
}

// Dir returns the directory searched for config.yaml
func (l *Loader) Dir() string {
	return l.dir
}

// RegisterFlags defines the command-line flags understood by BindFlags
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("dir", "", "Storage directory (default: ~/.clipboard-history)")
	fs.Int("max-items", 0, "Maximum number of history items (default: the saved setting, or 100)")
	fs.Duration("poll-interval", 0, "Clipboard polling interval")
	fs.Bool("extra-types", false, "Also capture files, URLs, images and videos")
	fs.Bool("server", true, "Serve the local API")
	fs.Int("port", 0, "Local API port")
	fs.Bool("replace", false, "Terminate an already running instance")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (json, console)")
}

// BindFlags binds flags defined by RegisterFlags. Only flags set on the
// command line override file and environment values.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file if present and returns the merged configuration
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the reloaded configuration whenever the config
// file changes. Invalid edits are reported through onError and ignored.
// Watch is a no-op when no config file was found by Load.
func (l *Loader) Watch(onChange func(*Config, fsnotify.Event), onError func(error)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.unmarshal()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg, e)
	})
	l.v.WatchConfig()
	return true
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return errors.New("storage.path must not be empty")
	}
	if c.Storage.MaxItems < 0 {
		return fmt.Errorf("storage.max_items must not be negative, got %d", c.Storage.MaxItems)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
