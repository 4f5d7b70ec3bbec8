package app

import (
	"context"
	"fmt"
	"os"

	"relayctl/internal/config"
	"relayctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs
// the relay node.
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance
func NewApplication(cfg *Config) (*Application, error) {
	logging.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	rt, err := config.LoadRuntime(cfg.RuntimePath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load runtime configuration")
		return nil, fmt.Errorf("failed to load runtime configuration: %w", err)
	}
	if cfg.RuntimePath != "" {
		logging.Info("Bootstrap", "Loaded runtime configuration from %s", cfg.RuntimePath)
	}

	return &Application{
		config:   cfg,
		services: InitializeServices(rt),
	}, nil
}

// Run brings the node up and keeps it running until ctx is cancelled or a
// termination signal arrives.
func (a *Application) Run(ctx context.Context) error {
	return runServe(ctx, serveOptions{
		runner:    a.services.Orchestrator,
		storePath: config.StorePath(),
		interval:  a.services.Runtime.Timing.WatchInterval,
		out:       a.config.Output,
	})
}
