package cmd

import (
	"fmt"

	"relayctl/internal/config"
	"relayctl/internal/xray"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Print the relay configuration for the current settings",
		Long: `Renders the relay configuration document exactly as 'serve' would write
it to <FILE_PATH>/config.json, without starting anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			data, err := xray.Render(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
