package client

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/spf13/cobra"
)

type queryRequest struct {
	Query       string   `json:"query"`
	K           int      `json:"k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Answer is the union of the single and cross-document answer payloads.
type Answer struct {
	Query             string          `json:"query"`
	Answer            string          `json:"answer"`
	Sources           []domain.Source `json:"sources"`
	QueryType         string          `json:"query_type"`
	ChunksRetrieved   int             `json:"chunks_retrieved,omitempty"`
	DocumentsSearched int             `json:"documents_searched,omitempty"`
	DocumentNames     []string        `json:"document_names,omitempty"`
	LLMUsed           bool            `json:"llm_used"`
	Provider          string          `json:"llm_provider,omitempty"`
	Status            string          `json:"status"`
	ProcessingTimeMS  int64           `json:"processing_time_ms"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		documentIDs []string
		k           int
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a question about the documents",
		Long: `Asks the server a question.

With exactly one --document the question targets that document; with several
or none it is answered across documents.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			req := queryRequest{Query: strings.Join(args, " "), K: k}
			path := "/query"
			if len(documentIDs) == 1 {
				path = "/documents/" + url.PathEscape(documentIDs[0]) + "/query"
			} else {
				req.DocumentIDs = documentIDs
			}

			resp, err := api.Post(cmd.Context(), path, req)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			var answer Answer
			if err := decodeData(resp, &answer); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, answer)
			}
			printAnswer(out, answer, showSources)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&documentIDs, "document", "d", nil, "Document ID to ask about (repeatable)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (0 uses the server default)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved sources")

	return cmd
}

func printAnswer(out io.Writer, answer Answer, showSources bool) {
	fmt.Fprintln(out, answer.Answer)
	fmt.Fprintln(out)

	via := "retrieved sections"
	if answer.LLMUsed {
		via = answer.Provider
	}
	fmt.Fprintf(out, "[%s, %s, %dms]\n", answer.QueryType, via, answer.ProcessingTimeMS)

	if !showSources || len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
	for i, src := range answer.Sources {
		label := fmt.Sprintf("chunk %d", src.LocalIndex)
		if src.DocumentName != "" {
			label = src.DocumentName + ", " + label
		}
		fmt.Fprintf(out, "%d. %s (%.2f)\n   %s\n", i+1, label, src.RelevanceScore, src.Preview)
	}
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		documentIDs []string
		k           int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search chunks across documents",
		Long:  "Returns the most similar chunks across documents without generating an answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post(cmd.Context(), "/search", queryRequest{
				Query:       strings.Join(args, " "),
				K:           k,
				DocumentIDs: documentIDs,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			var result searchResponse
			if err := decodeData(resp, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, result)
			}
			if len(result.Results) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}

			fmt.Fprintf(out, "Found %d results:\n\n", len(result.Results))
			for i, r := range result.Results {
				text := r.ChunkText
				if len(text) > 100 {
					text = text[:97] + "..."
				}
				fmt.Fprintf(out, "%d. %s, chunk %d (%.2f)\n   %s\n", i+1, r.DocumentName, r.LocalIndex, r.Score, text)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&documentIDs, "document", "d", nil, "Restrict to these document IDs (repeatable)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results (0 uses the server default)")

	return cmd
}
