package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for chunk and query embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the dimension of text-embedding-3-small vectors
	DefaultEmbeddingDimensions = 1536
	// DefaultBatchSize is the number of texts sent per embeddings request
	DefaultBatchSize = 32
)

var (
	// ErrEmptyText is returned when an input text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")
)

// EmbeddingAPI is the subset of the OpenAI client used for embeddings.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config configures the embedding and chat clients.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	ChatModel           string
}

// NewAPIClient returns a go-openai client honouring BaseURL, so compatible
// servers can stand in for the hosted API.
func NewAPIClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// Client embeds texts through the OpenAI embeddings endpoint.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	batchSize  int
}

// NewClient creates an embedding client from cfg.
func NewClient(cfg Config) (*Client, error) {
	api, err := NewAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(api, cfg), nil
}

func newClient(api EmbeddingAPI, cfg Config) *Client {
	model := cfg.EmbeddingModel
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		api:        api,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
	}
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Dimensions returns the expected vector dimension.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed returns one vector per text, in input order. Texts are sent in
// batches of at most BatchSize.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := append([]openai.Embedding(nil), resp.Data...)
	sort.Slice(data, func(a, b int) bool { return data[a].Index < data[b].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(d.Embedding))
		}
		out[i] = d.Embedding
	}
	return out, nil
}
