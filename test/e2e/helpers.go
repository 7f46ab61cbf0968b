//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/cli/admin"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const e2eBucket = "e2e-indices"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Config     *config.Config
	Embedder   *testutil.FakeEmbedder
	App        *admin.App
	Server     *httptest.Server
	ServerURL  string
	BinaryDir  string
	HTTPClient *http.Client
}

// SetupE2EEnv starts Postgres and RustFS and serves a fully wired docqad
// app over them.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	cfg := &config.Config{
		LogLevel:          "error",
		LogFormat:         "text",
		Environment:       "test",
		ChunkSize:         50,
		ChunkOverlap:      5,
		MinChunkChars:     10,
		DefaultTopK:       5,
		CrossDocumentTopK: 8,
		SnapshotInterval:  time.Second,
		MaxUploadBytes:    1 << 20,
		DatabaseURL:       pgC.ConnectionString(),
		S3Endpoint:        s3C.Endpoint(),
		S3AccessKey:       testutil.RustFSCredential,
		S3SecretKey:       testutil.RustFSCredential,
		S3Bucket:          e2eBucket,
		S3Region:          "us-east-1",
		S3UsePathStyle:    true,
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Config:     cfg,
		Embedder:   testutil.NewFakeEmbedder(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer()
	return env
}

func (e *E2ETestEnv) startServer() {
	app, err := admin.NewApp(e.Ctx, e.Config, io.Discard, admin.AppOptions{
		Embedder:       e.Embedder,
		SkipMigrations: true,
	})
	if err != nil {
		e.T.Fatalf("failed to build app: %v", err)
	}
	if _, err := app.Rehydrate(e.Ctx); err != nil {
		e.T.Fatalf("failed to rehydrate: %v", err)
	}

	e.App = app
	e.Server = httptest.NewServer(app.Handler())
	e.ServerURL = e.Server.URL
}

func (e *E2ETestEnv) stopServer() {
	if e.Server != nil {
		e.Server.Close()
		e.Server = nil
	}
	if e.App != nil {
		if err := e.App.Flush(e.Ctx); err != nil {
			e.T.Logf("flush failed: %v", err)
		}
		e.App.Close()
		e.App = nil
	}
}

// Restart flushes pending snapshots and serves a fresh app that must
// rehydrate from the catalog.
func (e *E2ETestEnv) Restart() {
	e.stopServer()
	e.startServer()
}

// S3Store opens the snapshot bucket directly.
func (e *E2ETestEnv) S3Store() *storage.S3Store {
	store, err := storage.NewS3Store(e.Ctx, storage.S3ClientConfig{
		Endpoint:        e.Config.S3Endpoint,
		Region:          e.Config.S3Region,
		AccessKeyID:     e.Config.S3AccessKey,
		SecretAccessKey: e.Config.S3SecretKey,
		Bucket:          e.Config.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		e.T.Fatalf("failed to create S3 store: %v", err)
	}
	return store
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	e.stopServer()
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the docqa client binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docqa-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docqa"), "./cmd/docqa")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docqa: %v\n%s", err, out)
	}
}

// RunDocqa runs the docqa CLI against the test server with an isolated
// config directory.
func (e *E2ETestEnv) RunDocqa(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docqa"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("DOCQA_API_URL=%s", e.ServerURL),
		fmt.Sprintf("HOME=%s", workDir),
		fmt.Sprintf("XDG_CONFIG_HOME=%s", filepath.Join(workDir, ".config")),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

// Ingest posts a JSON document and returns its ID.
func (e *E2ETestEnv) Ingest(name, text string) string {
	resp, err := e.Post("/documents", map[string]string{"name": name, "text": text})
	if err != nil {
		e.T.Fatalf("failed to ingest %s: %v", name, err)
	}
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		e.T.Fatalf("failed to parse ingest response: %v", err)
	}
	return doc.ID
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}
