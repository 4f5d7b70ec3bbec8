package cmd

import (
	"fmt"
	"os"
	"strings"

	"relayctl/internal/artifact"
	"relayctl/internal/color"
	"relayctl/internal/config"
	"relayctl/internal/links"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// For mocking in tests
var clipboardWriteAll = clipboard.WriteAll

func newLinksCmd() *cobra.Command {
	var (
		file     string
		raw      bool
		copyBlob bool
	)

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Show the connection links of the last run",
		Long: `Decodes the subscription file written by the last run and prints each
connection link. With --copy the subscription blob is also placed on the
clipboard, ready to import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				values, err := config.CurrentValues()
				if err != nil {
					return err
				}
				file = artifact.NewLayout(values[config.KeyFilePath]).Subscription.Path
			}

			blob, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("no subscription found, has 'relayctl serve' run yet? %w", err)
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, strings.TrimSpace(string(blob)))
			} else {
				nodes, err := links.Decode(blob)
				if err != nil {
					return err
				}
				if len(nodes) == 0 {
					return fmt.Errorf("subscription %s carries no links", file)
				}
				for _, node := range nodes {
					scheme, _, _ := strings.Cut(node, "://")
					fmt.Fprintln(out, color.TitleStyle.Render(scheme))
					fmt.Fprintln(out, node)
				}
			}

			if copyBlob {
				if err := clipboardWriteAll(strings.TrimSpace(string(blob))); err != nil {
					return fmt.Errorf("failed to copy subscription: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), color.SuccessStyle.Render("Subscription copied to clipboard"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Subscription file (default <FILE_PATH>/sub.txt)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the encoded subscription instead of the decoded links")
	cmd.Flags().BoolVar(&copyBlob, "copy", false, "Copy the encoded subscription to the clipboard")
	return cmd
}
