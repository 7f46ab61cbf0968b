package client

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/spf13/cobra"
)

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type clearResponse struct {
	Removed int `json:"removed"`
}

type similarResponse struct {
	DocumentID string                      `json:"document_id"`
	Similar    []domain.DocumentSimilarity `json:"similar_documents"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a plain-text document",
		Long:  "Uploads a UTF-8 text file to the server, which chunks, embeds and indexes it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close()

			resp, err := api.Upload(cmd.Context(), "/documents", args[0], name, file)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			var summary domain.DocumentSummary
			if err := decodeData(resp, &summary); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, summary)
			}
			fmt.Fprintf(out, "Uploaded %s as %s (%d chunks)\n", summary.Name, summary.ID, summary.ChunkCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name (defaults to the file name)")

	return cmd
}

type listResponse struct {
	domain.CollectionSummary
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List indexed documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			path := "/documents"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			resp, err := api.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			var result listResponse
			if err := decodeData(resp, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, result)
			}
			if result.TotalDocuments == 0 {
				fmt.Fprintln(out, "No documents indexed.")
				return nil
			}
			fmt.Fprintf(out, "%d documents, %d chunks\n\n", result.TotalDocuments, result.TotalChunks)
			for _, doc := range result.Documents {
				fmt.Fprintf(out, "%s  %s  (%d chunks)\n", doc.ID, doc.Name, doc.ChunkCount)
			}
			if result.HasMore {
				fmt.Fprintf(out, "\nMore documents: docqa list --limit %d --cursor %s\n", limit, result.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum documents to show (0 shows all)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous page")

	return cmd
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document_id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get(cmd.Context(), "/documents/"+url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}

			var doc domain.DocumentSummary
			if err := decodeData(resp, &doc); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, doc)
			}
			fmt.Fprintf(out, "ID:       %s\n", doc.ID)
			fmt.Fprintf(out, "Name:     %s\n", doc.Name)
			fmt.Fprintf(out, "Size:     %d bytes\n", doc.Size)
			fmt.Fprintf(out, "Chunks:   %d\n", doc.ChunkCount)
			fmt.Fprintf(out, "Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "delete [document_id]",
		Aliases: []string{"rm"},
		Short:   "Remove a document, or every document with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if all {
				resp, err := api.Delete(cmd.Context(), "/documents?confirm=true")
				if err != nil {
					return fmt.Errorf("failed to clear collection: %w", err)
				}
				var result clearResponse
				if err := decodeData(resp, &result); err != nil {
					return err
				}
				if cli.JSONOutput(cmd) {
					return cli.PrintJSON(out, result)
				}
				fmt.Fprintf(out, "Removed %d documents\n", result.Removed)
				return nil
			}

			resp, err := api.Delete(cmd.Context(), "/documents/"+url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}

			var result deleteResponse
			if err := decodeData(resp, &result); err != nil {
				return err
			}

			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, result)
			}
			fmt.Fprintf(out, "Deleted %s\n", result.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every document in the collection")

	return cmd
}

// SimilarCmd creates the similar command.
func SimilarCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "similar <document_id>",
		Short: "Rank documents by similarity to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			path := fmt.Sprintf("/documents/%s/similar?k=%d", url.PathEscape(args[0]), k)
			resp, err := api.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to rank documents: %w", err)
			}

			var result similarResponse
			if err := decodeData(resp, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.JSONOutput(cmd) {
				return cli.PrintJSON(out, result)
			}
			if len(result.Similar) == 0 {
				fmt.Fprintln(out, "No other documents.")
				return nil
			}
			for i, s := range result.Similar {
				fmt.Fprintf(out, "%d. %s  %s (%.3f)\n", i+1, s.DocumentID, s.DocumentName, s.Score)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "Number of documents to return")

	return cmd
}
