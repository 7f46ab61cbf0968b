package client

import (
	"fmt"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/spf13/cobra"
)

// ConfigCmd creates the config parent command
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage which server the CLI talks to",
		Long:  "Show, set and reset the server URL stored in the global config (~/.config/docqa/config.json)",
	}

	cmd.AddCommand(ConfigSetURLCmd())
	cmd.AddCommand(ConfigShowCmd())
	cmd.AddCommand(ConfigResetCmd())

	return cmd
}

// ConfigSetURLCmd creates the config set-url command
func ConfigSetURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-url <url>",
		Short: "Store the server URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateAPIURL(args[0]); err != nil {
				return err
			}
			if err := SaveGlobalConfig(&GlobalConfig{APIURL: args[0]}); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL set to %s\n", args[0])
			return nil
		},
	}
}

// ConfigShowCmd creates the config show command
func ConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the server URL in use and where it came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagURL, _ := cmd.Flags().GetString("api-url")
			apiURL, source, err := ResolveAPIURL(flagURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, map[string]string{
					"api_url": apiURL,
					"source":  string(source),
				})
			}
			fmt.Fprintf(out, "API URL: %s (%s)\n", apiURL, source)
			return nil
		},
	}
}

// ConfigResetCmd creates the config reset command
func ConfigResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the stored server URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to reset config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Config reset")
			return nil
		},
	}
}
