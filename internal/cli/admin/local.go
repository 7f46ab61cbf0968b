package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/spf13/cobra"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

// withApp builds the app, restores the collection, runs fn and flushes
// snapshots written by fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg, cmd.ErrOrStderr(), appOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Rehydrate(ctx); err != nil {
		return err
	}
	if err := fn(ctx, app); err != nil {
		return err
	}
	return app.Flush(ctx)
}

// appOptions is replaced in tests.
var appOptions = AppOptions{}

// IngestCmd returns the ingest command.
func IngestCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Index a plain-text document",
		Long:  "Chunks, embeds and indexes a UTF-8 text file and writes its snapshot to the store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.JSONOutput(cmd)
			return withApp(cmd, func(ctx context.Context, app *App) error {
				return runIngest(ctx, cmd.OutOrStdout(), app, args[0], name, outputJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name (defaults to the file name)")

	return cmd
}

func runIngest(ctx context.Context, out io.Writer, app *App, path, name string, outputJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%s is not UTF-8 text", path)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	summary, err := app.Documents.Ingest(ctx, service.IngestInput{Name: name, Text: string(data), Size: int64(len(data))})
	if err != nil {
		return err
	}

	if outputJSON {
		return cli.PrintJSON(out, summary)
	}
	fmt.Fprintf(out, "Indexed %s as %s (%d chunks)\n", summary.Name, summary.ID, summary.ChunkCount)
	return nil
}

// DocumentsCmd returns the documents command.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.JSONOutput(cmd)
			return withApp(cmd, func(ctx context.Context, app *App) error {
				summary := app.Documents.List(ctx)
				out := cmd.OutOrStdout()
				if outputJSON {
					return cli.PrintJSON(out, summary)
				}
				if summary.TotalDocuments == 0 {
					fmt.Fprintln(out, "No documents indexed.")
					return nil
				}
				fmt.Fprintf(out, "%d documents, %d chunks\n\n", summary.TotalDocuments, summary.TotalChunks)
				for _, doc := range summary.Documents {
					fmt.Fprintf(out, "%s  %s  (%d chunks, %d bytes)\n", doc.ID, doc.Name, doc.ChunkCount, doc.Size)
				}
				return nil
			})
		},
	}
	return cmd
}

// SimilarCmd returns the similar command.
func SimilarCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar <document_id>",
		Short: "Rank documents by similarity to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.JSONOutput(cmd)
			return withApp(cmd, func(ctx context.Context, app *App) error {
				similar, err := app.Documents.Similar(ctx, args[0], k)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if outputJSON {
					return cli.PrintJSON(out, similar)
				}
				if len(similar) == 0 {
					fmt.Fprintln(out, "No other documents.")
					return nil
				}
				for i, s := range similar {
					fmt.Fprintf(out, "%d. %s  %s (%.3f)\n", i+1, s.DocumentID, s.DocumentName, s.Score)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "Number of documents to return")

	return cmd
}

// AskCmd returns the ask command.
func AskCmd() *cobra.Command {
	var (
		documentID string
		k          int
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a question about one or all documents",
		Long: `Answers a question from the indexed documents.

Without --document the question is answered across the whole collection.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON := cli.JSONOutput(cmd)
			query := strings.Join(args, " ")
			return withApp(cmd, func(ctx context.Context, app *App) error {
				return runAsk(ctx, cmd.OutOrStdout(), app, query, documentID, k, outputJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&documentID, "document", "d", "", "Restrict the question to one document")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (0 uses the configured default)")

	return cmd
}

func runAsk(ctx context.Context, out io.Writer, app *App, query, documentID string, k int, outputJSON bool) error {
	if documentID != "" {
		result, err := app.Queries.Ask(ctx, service.AskInput{Query: query, DocumentID: documentID, K: k})
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.PrintJSON(out, result)
		}
		fmt.Fprintf(out, "%s\n\n[%s, %d chunks, %s]\n", result.Answer, result.QueryType, result.ChunksRetrieved, providerLabel(result.LLMUsed, result.Provider))
		return nil
	}

	result, err := app.Queries.AskAcross(ctx, service.AskAcrossInput{Query: query, KTotal: k})
	if err != nil {
		return err
	}
	if outputJSON {
		return cli.PrintJSON(out, result)
	}
	fmt.Fprintf(out, "%s\n\n[%s, %d documents, %s]\n", result.Answer, result.QueryType, result.DocumentsSearched, providerLabel(result.LLMUsed, result.Provider))
	return nil
}

func providerLabel(llmUsed bool, provider string) string {
	if !llmUsed {
		return "retrieved sections"
	}
	return provider
}
