package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "goaldeck" {
		t.Errorf("expected Name=goaldeck, got %s", cfg.Name)
	}
	if cfg.Session.Mode != "explore" {
		t.Errorf("expected Mode=explore, got %s", cfg.Session.Mode)
	}
	if cfg.Thresholds.ConflictOverlaySeverity != 0.7 {
		t.Errorf("expected conflict severity 0.7, got %v", cfg.Thresholds.ConflictOverlaySeverity)
	}
	if cfg.Invariants.Policy != InvariantAdvisory {
		t.Errorf("expected advisory invariant policy, got %s", cfg.Invariants.Policy)
	}
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GOALDECK_MODE", "")
	t.Setenv("GOALDECK_JOURNAL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Session.Mode = "reflect"
	cfg.Invariants.Policy = InvariantEnforce
	maxDepth := 4
	cfg.Filters.MaxDepth = &maxDepth

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "reflect", loaded.Session.Mode)
	assert.Equal(t, InvariantEnforce, loaded.Invariants.Policy)
	require.NotNil(t, loaded.Filters.MaxDepth)
	assert.Equal(t, 4, *loaded.Filters.MaxDepth)
	assert.Nil(t, loaded.Filters.MinDepth)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Session, cfg.Session)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(path))
	require.NoError(t, os.WriteFile(path, []byte("session: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GOALDECK_MODE", "exploit")
	t.Setenv("GOALDECK_JOURNAL", "/tmp/j.db")
	t.Setenv("GOALDECK_CONFLICT_SEVERITY", "0.5")
	t.Setenv("GOALDECK_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "exploit", cfg.Session.Mode)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.DatabasePath)
	assert.InDelta(t, 0.5, cfg.Thresholds.ConflictOverlaySeverity, 1e-9)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestConfig_EnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("GOALDECK_CONFLICT_SEVERITY", "very")
	t.Setenv("GOALDECK_DEBUG", "maybe")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, 0.7, cfg.Thresholds.ConflictOverlaySeverity)
	assert.False(t, cfg.Logging.DebugMode)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Session.Mode = "sprint" }},
		{"unknown overlay", func(c *Config) { c.Session.Overlay = "xray" }},
		{"severity above one", func(c *Config) { c.Thresholds.ConflictOverlaySeverity = 1.5 }},
		{"unknown policy", func(c *Config) { c.Invariants.Policy = "strict" }},
		{"zero snapshots", func(c *Config) { c.Timeline.MaxSnapshots = 0 }},
		{"journal without path", func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.DatabasePath = ""
		}},
		{"inverted depth bounds", func(c *Config) {
			minD, maxD := 5, 2
			c.Filters.MinDepth = &minD
			c.Filters.MaxDepth = &maxD
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingConfig_Options(t *testing.T) {
	c := LoggingConfig{DebugMode: true, Level: "info", Categories: map[string]bool{"graph": false}}

	opts := c.Options()
	assert.True(t, opts.DebugMode)
	assert.Equal(t, c.Categories, opts.Categories)
}
