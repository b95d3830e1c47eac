package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fogtimer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, "fogtimer.db", cfg.Database)
	assert.Equal(t, "fog_trials", cfg.ArchiveKey)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, ".", cfg.Export.Directory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/trials.db
tick_interval: 50ms
protocol_file: protocol.cue
export:
  dir: exports
  timezone: UTC
logging:
  level: debug
  console: false
`)
	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, path, l.ConfigFile())
	assert.Equal(t, "/tmp/trials.db", cfg.Database)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "protocol.cue", cfg.ProtocolFile)
	assert.Equal(t, "exports", cfg.Export.Directory)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Console)

	loc, err := cfg.Export.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database: from-file.db\n")
	t.Setenv("FOGTIMER_DATABASE", "from-env.db")
	t.Setenv("FOGTIMER_EXPORT_DIR", "env-exports")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, "env-exports", cfg.Export.Directory)
}

func TestLoad_SetOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	l := NewLoader("")
	l.Set("database", "flag.db")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.Database)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database:     "a.db",
		ArchiveKey:   "k",
		TickInterval: time.Millisecond,
		Export:       ExportConfig{Timezone: "UTC"},
		Logging:      LoggingConfig{Level: "info"},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = " " }},
		{"empty archive key", func(c *Config) { c.ArchiveKey = "" }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"bad timezone", func(c *Config) { c.Export.Timezone = "Mars/Olympus" }},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
