package client

import (
	"fmt"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/spf13/cobra"
)

type serverStatus struct {
	Status         string                `json:"status"`
	DocumentsCount int                   `json:"documents_count"`
	ChunksCount    int                   `json:"chunks_count"`
	EmbeddingModel string                `json:"embedding_model"`
	LLM            domain.ProviderStatus `json:"llm"`
}

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and provider status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/status")
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			var status serverStatus
			if err := decodeData(resp, &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, status)
			}
			fmt.Fprintf(out, "Server:     %s\n", status.Status)
			fmt.Fprintf(out, "Documents:  %d (%d chunks)\n", status.DocumentsCount, status.ChunksCount)
			fmt.Fprintf(out, "Embeddings: %s\n", status.EmbeddingModel)
			fmt.Fprintf(out, "LLM:        %s %s (%s)\n", status.LLM.Provider, status.LLM.Model, status.LLM.Status)
			if status.LLM.Message != "" {
				fmt.Fprintf(out, "            %s\n", status.LLM.Message)
			}
			return nil
		},
	}
}
