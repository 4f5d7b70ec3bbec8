package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"relayctl/internal/color"
	"relayctl/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// secretKeys are masked by 'config show' unless --reveal is given, and read
// without echo by 'config set'.
var secretKeys = map[string]bool{
	config.KeyUUID:     true,
	config.KeyArgoAuth: true,
	config.KeyNezhaKey: true,
}

// For mocking in tests
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readHidden      = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the persisted settings",
		Long: `Reads and writes the settings store at <FILE_PATH>/.env. Environment
variables take precedence over the store, which takes precedence over the
built-in defaults. A running 'relayctl serve' restarts when the store changes.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGenTokenCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		reveal bool
		dotenv bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective settings and where each value comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := config.NewStore(config.StorePath()).Read()
			if err != nil {
				return err
			}
			env := config.EnvironmentValues()
			defaults := config.DefaultValues()
			values := config.MergeValues(defaults, stored, env)

			shown := make(map[string]string, len(values))
			for k, v := range values {
				if secretKeys[k] && !reveal {
					v = mask(v)
				}
				shown[k] = v
			}

			out := cmd.OutOrStdout()
			if dotenv {
				text, err := config.Render(shown)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}

			fmt.Fprintln(out, color.TitleStyle.Render("Settings")+" "+color.MutedStyle.Render(config.StorePath()))
			for _, key := range append([]string{config.KeyFilePath}, config.Keys...) {
				v, ok := shown[key]
				if !ok {
					continue
				}
				source := valueSource(key, env, stored)
				line := color.Row(key, v) + "  " + color.MutedStyle.Render(source)
				fmt.Fprintln(out, line)
			}

			if s, err := config.Parse(values); err != nil {
				fmt.Fprintln(out, color.ErrorStyle.Render(err.Error()))
			} else {
				for _, w := range config.Warnings(s) {
					fmt.Fprintln(out, color.WarningStyle.Render("warning: "+w))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show secret values in full")
	cmd.Flags().BoolVar(&dotenv, "dotenv", false, "Print the effective settings in dotenv syntax")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Persist a setting in the store",
		Long: `Persists KEY=VALUE in the settings store. An empty VALUE removes the key.
When VALUE is omitted it is read from standard input, without echo when
standard input is a terminal.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToUpper(strings.TrimSpace(args[0]))

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				read, err := promptValue(cmd.ErrOrStderr(), cmd.InOrStdin(), key)
				if err != nil {
					return err
				}
				value = read
			}

			store := config.NewStore(config.StorePath())
			if err := store.Set(key, value); err != nil {
				return err
			}
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", key, store.Path())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", key, store.Path())
			}
			return nil
		},
	}
}

func newConfigGenTokenCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "gen-token",
		Short: "Generate a new identity token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := uuid.NewString()
			if save {
				if err := config.NewStore(config.StorePath()).Set(config.KeyUUID, token); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Also persist the token as "+config.KeyUUID)
	return cmd
}

func promptValue(prompt io.Writer, in io.Reader, key string) (string, error) {
	if in == os.Stdin && stdinIsTerminal() {
		fmt.Fprintf(prompt, "%s: ", key)
		if secretKeys[key] {
			data, err := readHidden()
			fmt.Fprintln(prompt)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", key, err)
			}
			return strings.TrimSpace(string(data)), nil
		}
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return strings.TrimSpace(line), nil
}

func valueSource(key string, env, stored map[string]string) string {
	if v := env[key]; v != "" {
		return "env"
	}
	if v := stored[key]; v != "" {
		return "store"
	}
	return "default"
}

func mask(v string) string {
	if len(v) <= 8 {
		return "********"
	}
	return "****" + v[len(v)-4:]
}
