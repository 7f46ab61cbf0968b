package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "docqa CLI - ask questions about your documents",
		Long: `docqa uploads plain-text documents to a docqa server and asks questions about them.

Environment variables:
  DOCQA_API_URL   API base URL (default: http://localhost:8080)`,
		Version:       version,
		SilenceErrors: true,
	}

	cli.AddOutputFlag(rootCmd)
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)
	client.SetVersion(version)

	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.SimilarCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.ConfigCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Hint() != "" {
			fmt.Fprintln(os.Stderr, "hint:", apiErr.Hint())
		}
		os.Exit(1)
	}
}
