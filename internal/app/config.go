package app

import (
	"io"
	"os"

	"relayctl/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// Logging
	LogLevel  logging.LogLevel
	LogFormat logging.Format

	// RuntimePath is an explicit runtime tuning file. Empty means the
	// layered user and project files.
	RuntimePath string

	// Output receives the human-readable run summaries.
	Output io.Writer
}

// NewConfig creates a new application configuration
func NewConfig(level logging.LogLevel, format logging.Format, runtimePath string) *Config {
	return &Config{
		LogLevel:    level,
		LogFormat:   format,
		RuntimePath: runtimePath,
		Output:      os.Stdout,
	}
}
