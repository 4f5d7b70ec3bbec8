package cmd

import (
	"os"

	"relayctl/internal/config"
	"relayctl/pkg/logging"

	"github.com/spf13/cobra"
)

// Persistent flags shared by every subcommand.
var (
	logLevelFlag  string
	logFormatFlag string
	configPath    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Run a tunnelled proxy relay node",
	Long: `relayctl downloads and supervises a proxy relay, a tunnel client and an
optional monitoring agent, discovers the tunnel's public hostname and
publishes ready-to-import connection links as a subscription.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid settings, failed downloads)
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevelFlag)
		if err != nil {
			return err
		}
		if err := validateLogFormat(logFormatFlag); err != nil {
			return err
		}
		logging.Init(level, logging.Format(logFormatFlag), os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "relayctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func validateLogFormat(format string) error {
	return config.ValidateOneOf("log-format", format, []string{string(logging.FormatText), string(logging.FormatJSON)})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", string(logging.FormatText), "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Runtime tuning file (default layers ~/.config/relayctl/config.yaml and ./.relayctl/config.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newLinksCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
