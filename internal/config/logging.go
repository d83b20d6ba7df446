package config

import "goaldeck/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`                                                   // Structured JSON lines instead of console text
	DebugMode  bool            `yaml:"debug_mode"`                                                    // Master toggle - false = no logging (production)
	Categories map[string]bool `yaml:"categories"`                                                    // Per-category toggles
}

// Options converts the YAML section into the logging package's config.
func (c LoggingConfig) Options() logging.Config {
	return logging.Config{
		DebugMode:  c.DebugMode,
		Level:      c.Level,
		JSONFormat: c.JSONFormat,
		Categories: c.Categories,
	}
}
