package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/docqa/internal/cli"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRootCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "docqa", SilenceUsage: true, SilenceErrors: true}
	cli.AddOutputFlag(root)
	root.PersistentFlags().String("api-url", "", "API URL")
	root.AddCommand(cmds...)
	return root
}

func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeData(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
}

// fakeServer serves canned responses for the docqa API and records the last
// query request it received.
func fakeServer(t *testing.T, lastQuery *queryRequest, lastPath *string) *httptest.Server {
	t.Helper()
	useTempConfigDir(t)

	r := chi.NewRouter()
	r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)
		name := r.FormValue("name")
		if name == "" {
			name = header.Filename
		}
		writeData(w, http.StatusCreated, domain.DocumentSummary{ID: "doc-1", Name: name, Size: int64(len(body)), ChunkCount: 2})
	})
	r.Get("/documents", func(w http.ResponseWriter, r *http.Request) {
		resp := listResponse{CollectionSummary: domain.CollectionSummary{
			TotalDocuments: 1,
			TotalChunks:    2,
			Documents:      []domain.DocumentSummary{{ID: "doc-1", Name: "leave.txt", ChunkCount: 2}},
		}}
		if r.URL.Query().Get("limit") != "" {
			resp.HasMore = true
			resp.Cursor = "next-page"
		}
		writeData(w, http.StatusOK, resp)
	})
	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "doc-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"document not found","code":"NOT_FOUND"}`))
			return
		}
		writeData(w, http.StatusOK, domain.DocumentSummary{ID: "doc-1", Name: "leave.txt", ChunkCount: 2})
	})
	r.Delete("/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeData(w, http.StatusOK, clearResponse{Removed: 2})
	})
	r.Delete("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, deleteResponse{ID: chi.URLParam(r, "id"), Deleted: true})
	})
	r.Get("/documents/{id}/similar", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, similarResponse{
			DocumentID: chi.URLParam(r, "id"),
			Similar:    []domain.DocumentSimilarity{{DocumentID: "doc-2", DocumentName: "travel.txt", Score: 0.5, ChunkCount: 1}},
		})
	})
	answer := func(w http.ResponseWriter, r *http.Request) {
		*lastPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(lastQuery))
		writeData(w, http.StatusOK, Answer{
			Query:     lastQuery.Query,
			Answer:    "Employees get 20 days of leave.",
			QueryType: "factual",
			Sources:   []domain.Source{{DocumentName: "leave.txt", LocalIndex: 0, RelevanceScore: 0.9, Preview: "Employees get 20 days"}},
			Status:    "success",
		})
	}
	r.Post("/documents/{id}/query", answer)
	r.Post("/query", answer)
	r.Post("/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(lastQuery))
		writeData(w, http.StatusOK, searchResponse{
			Query:   lastQuery.Query,
			Results: []domain.SearchResult{{ChunkText: "Flights are booked by the travel desk.", Score: 0.8, DocumentID: "doc-2", DocumentName: "travel.txt"}},
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, serverStatus{
			Status:         "ok",
			DocumentsCount: 1,
			ChunksCount:    2,
			EmbeddingModel: "text-embedding-3-small",
			LLM:            domain.ProviderStatus{Status: "not_configured", Provider: "fallback", Model: "none"},
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestUploadCmd(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	file := filepath.Join(t.TempDir(), "leave.txt")
	require.NoError(t, os.WriteFile(file, []byte("Employees get 20 days of leave."), 0o644))

	out, err := execute(t, newRootCmd(UploadCmd()), "upload", file, "--api-url", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Uploaded leave.txt as doc-1 (2 chunks)\n", out)

	out, err = execute(t, newRootCmd(UploadCmd()), "upload", file, "--name", "Leave Policy", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded Leave Policy as doc-1")
}

func TestUploadCmd_MissingFile(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	_, err := execute(t, newRootCmd(UploadCmd()), "upload", filepath.Join(t.TempDir(), "nope.txt"), "--api-url", server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestListAndGetCmd(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	out, err := execute(t, newRootCmd(ListCmd()), "ls", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents, 2 chunks")
	assert.Contains(t, out, "doc-1  leave.txt  (2 chunks)")

	out, err = execute(t, newRootCmd(ListCmd()), "list", "--output", "--api-url", server.URL)
	require.NoError(t, err)
	var summary listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.TotalDocuments)
	assert.False(t, summary.HasMore)

	out, err = execute(t, newRootCmd(ListCmd()), "list", "--limit", "1", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "More documents: docqa list --limit 1 --cursor next-page")

	_, err = execute(t, newRootCmd(GetCmd()), "get", "missing", "--api-url", server.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestDeleteAndSimilarCmd(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	out, err := execute(t, newRootCmd(DeleteCmd()), "rm", "doc-1", "--output", "--api-url", server.URL)
	require.NoError(t, err)
	var deleted deleteResponse
	require.NoError(t, json.Unmarshal([]byte(out), &deleted))
	assert.Equal(t, deleteResponse{ID: "doc-1", Deleted: true}, deleted)

	out, err = execute(t, newRootCmd(DeleteCmd()), "delete", "--all", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 documents")

	_, err = execute(t, newRootCmd(DeleteCmd()), "delete", "--all", "doc-1", "--api-url", server.URL)
	require.Error(t, err)

	out, err = execute(t, newRootCmd(SimilarCmd()), "similar", "doc-1", "--output", "--api-url", server.URL)
	require.NoError(t, err)
	var similar similarResponse
	require.NoError(t, json.Unmarshal([]byte(out), &similar))
	require.Len(t, similar.Similar, 1)
	assert.Equal(t, "travel.txt", similar.Similar[0].DocumentName)
}

func TestAskCmd_SingleDocument(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	out, err := execute(t, newRootCmd(AskCmd()), "ask", "how", "much", "leave?", "-d", "doc-1", "--sources", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "/documents/doc-1/query", path)
	assert.Equal(t, "how much leave?", q.Query)
	assert.Empty(t, q.DocumentIDs)
	assert.Contains(t, out, "Employees get 20 days of leave.")
	assert.Contains(t, out, "[factual, retrieved sections,")
	assert.Contains(t, out, "1. leave.txt, chunk 0 (0.90)")
}

func TestAskCmd_AcrossDocuments(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	_, err := execute(t, newRootCmd(AskCmd()), "ask", "compare", "-d", "doc-1", "-d", "doc-2", "-k", "4", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "/query", path)
	assert.Equal(t, []string{"doc-1", "doc-2"}, q.DocumentIDs)
	assert.Equal(t, 4, q.K)
}

func TestSearchCmd(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	out, err := execute(t, newRootCmd(SearchCmd()), "search", "flights", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "flights", q.Query)
	assert.Contains(t, out, "Found 1 results:")
	assert.Contains(t, out, "1. travel.txt, chunk 0 (0.80)")
}

func TestCommand_InvalidAPIURL(t *testing.T) {
	useTempConfigDir(t)

	_, err := execute(t, newRootCmd(ListCmd()), "list", "--api-url", "localhost:8080")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API URL")
}

func TestStatusCmd(t *testing.T) {
	var q queryRequest
	var path string
	server := fakeServer(t, &q, &path)

	out, err := execute(t, newRootCmd(StatusCmd()), "status", "--api-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:  1 (2 chunks)")
	assert.Contains(t, out, "LLM:        fallback none (not_configured)")
}
