// Package config loads fogtimer settings with viper.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// config file, and FOGTIMER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix for environment overrides, e.g. FOGTIMER_DATABASE.
const EnvPrefix = "FOGTIMER"

// Config is the top-level configuration structure.
type Config struct {
	Database     string        `mapstructure:"database"`
	ArchiveKey   string        `mapstructure:"archive_key"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	ProtocolFile string        `mapstructure:"protocol_file"`
	Export       ExportConfig  `mapstructure:"export"`
	Logging      LoggingConfig `mapstructure:"logging"`
}

// ExportConfig holds CSV export settings. Reloaded on config file change.
type ExportConfig struct {
	Directory string `mapstructure:"dir"`
	Timezone  string `mapstructure:"timezone"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// Loader reads configuration and can watch the file for changes.
type Loader struct {
	v *viper.Viper
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "fogtimer.db")
	v.SetDefault("archive_key", "fog_trials")
	v.SetDefault("tick_interval", "10ms")
	v.SetDefault("protocol_file", "")

	v.SetDefault("export.dir", ".")
	v.SetDefault("export.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 30)    // 30 days
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)
}

// NewLoader prepares a loader. If path is empty the file fogtimer.yaml is
// searched for in the working directory and $HOME/.config/fogtimer.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fogtimer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "fogtimer"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads the config file (if any) and returns the validated config.
// A missing file is fine when no explicit path was given; defaults and env
// vars are used.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.decode()
}

// Set overrides a key, e.g. from a command-line flag.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the config when the file changes and passes the new
// config to onChange. Invalid reloads are logged and ignored.
func (l *Loader) Watch(log *zap.Logger, onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("configuration file changed, reloading", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		cfg, err := l.decode()
		if err != nil {
			log.Error("error reloading configuration", zap.Error(err))
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database must not be empty")
	}
	if strings.TrimSpace(c.ArchiveKey) == "" {
		return fmt.Errorf("archive_key must not be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if _, err := c.Export.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// Location resolves the export timezone.
func (e ExportConfig) Location() (*time.Location, error) {
	switch e.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("export.timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}
