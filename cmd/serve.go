package cmd

import (
	"context"
	"fmt"

	"relayctl/internal/app"
	"relayctl/pkg/logging"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bring the relay node up and keep it running",
		Long: `Brings the relay node up and supervises it until interrupted.

A run cleans the working directory, renders the relay configuration,
downloads the relay, tunnel client and (when configured) monitoring agent,
starts them, discovers the tunnel hostname and writes the subscription file.

Settings are read from the environment, then from <FILE_PATH>/.env, then
from built-in defaults. Editing the settings store (for example with
'relayctl config set') or sending SIGHUP restarts the node. SIGINT and
SIGTERM stop every managed process and exit.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevelFlag)
	if err != nil {
		return err
	}
	cfg := app.NewConfig(level, logging.Format(logFormatFlag), configPath)
	cfg.Output = cmd.OutOrStdout()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
