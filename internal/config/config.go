package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the workspace-relative location of the config file.
const DefaultPath = ".goaldeck/config.yaml"

// Config holds all goaldeck configuration.
type Config struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`

	// Initial UI state for every new session
	Session SessionConfig `yaml:"session"`

	// Initial graph filters
	Filters FilterConfig `yaml:"filters"`

	// Reaction thresholds for system events
	Thresholds ThresholdConfig `yaml:"thresholds"`

	// Invariant handling after each dispatch
	Invariants InvariantConfig `yaml:"invariants"`

	// Snapshot history
	Timeline TimelineConfig `yaml:"timeline"`

	// SQLite event journal
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig configures the UI state a session starts with.
type SessionConfig struct {
	Mode    string  `yaml:"mode" validate:"oneof=explore exploit reflect"`
	View    string  `yaml:"view" validate:"oneof=graph timeline tree skills deployments admin"`
	Overlay string  `yaml:"overlay" validate:"oneof=none heatmap conflicts memory_traces simulation"`
	Zoom    float64 `yaml:"zoom" validate:"gt=0"`
}

// FilterConfig configures the filter state a session starts with.
type FilterConfig struct {
	ShowPending      bool `yaml:"show_pending"`
	ShowActive       bool `yaml:"show_active"`
	ShowDone         bool `yaml:"show_done"`
	ShowBlocked      bool `yaml:"show_blocked"`
	ShowOnlyRoots    bool `yaml:"show_only_roots"`
	ShowOnlyAtomic   bool `yaml:"show_only_atomic"`
	CollapseChildren bool `yaml:"collapse_children"`
	MinDepth         *int `yaml:"min_depth,omitempty" validate:"omitempty,gte=0"`
	MaxDepth         *int `yaml:"max_depth,omitempty" validate:"omitempty,gte=0"`
}

// ThresholdConfig configures automatic reactions to system events.
type ThresholdConfig struct {
	// CONFLICT_DETECTED events above this severity switch the overlay to conflicts
	ConflictOverlaySeverity float64 `yaml:"conflict_overlay_severity" validate:"gte=0,lte=1"`
}

// InvariantPolicy selects what happens when a dispatch breaks a UI invariant.
type InvariantPolicy string

const (
	InvariantAdvisory InvariantPolicy = "advisory" // Record violations, keep the mutation
	InvariantEnforce  InvariantPolicy = "enforce"  // Record violations, roll the mutation back
)

// InvariantConfig configures invariant validation.
type InvariantConfig struct {
	Policy InvariantPolicy `yaml:"policy" validate:"oneof=advisory enforce"`
}

// TimelineConfig configures snapshot retention.
type TimelineConfig struct {
	MaxSnapshots int `yaml:"max_snapshots" validate:"gte=1"`
}

// JournalConfig configures the event journal database.
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path" validate:"required_if=Enabled true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "goaldeck",
		Version: "0.3.0",

		Session: SessionConfig{
			Mode:    "explore",
			View:    "graph",
			Overlay: "none",
			Zoom:    1.0,
		},

		Filters: FilterConfig{
			ShowPending: true,
			ShowActive:  true,
			ShowDone:    true,
			ShowBlocked: true,
		},

		Thresholds: ThresholdConfig{
			ConflictOverlaySeverity: 0.7,
		},

		Invariants: InvariantConfig{
			Policy: InvariantAdvisory,
		},

		Timeline: TimelineConfig{
			MaxSnapshots: 256,
		},

		Journal: JournalConfig{
			Enabled:      false,
			DatabasePath: ".goaldeck/journal.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults (with environment overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("GOALDECK_MODE"); mode != "" {
		c.Session.Mode = mode
	}
	if path := os.Getenv("GOALDECK_JOURNAL"); path != "" {
		c.Journal.DatabasePath = path
		c.Journal.Enabled = true
	}
	if v := os.Getenv("GOALDECK_CONFLICT_SEVERITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Thresholds.ConflictOverlaySeverity = f
		}
	}
	if v := os.Getenv("GOALDECK_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Filters.MinDepth != nil && c.Filters.MaxDepth != nil && *c.Filters.MinDepth > *c.Filters.MaxDepth {
		return fmt.Errorf("invalid config: filters.min_depth %d exceeds filters.max_depth %d",
			*c.Filters.MinDepth, *c.Filters.MaxDepth)
	}
	return nil
}
