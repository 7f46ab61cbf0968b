package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock for the OpenAI embeddings API
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func inputOf(n int) func(openai.EmbeddingRequestConverter) bool {
	return func(conv openai.EmbeddingRequestConverter) bool {
		req, ok := conv.(openai.EmbeddingRequest)
		if !ok {
			return false
		}
		input, ok := req.Input.([]string)
		return ok && len(input) == n
	}
}

func embeddingsResponse(dim int, indices ...int) openai.EmbeddingResponse {
	data := make([]openai.Embedding, len(indices))
	for i, idx := range indices {
		v := make([]float32, dim)
		v[0] = float32(idx)
		data[i] = openai.Embedding{Index: idx, Embedding: v}
	}
	return openai.EmbeddingResponse{Data: data}
}

func TestClient_Embed_OrdersByIndex(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{EmbeddingDimensions: 4})

	api.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(inputOf(3))).
		Return(embeddingsResponse(4, 2, 0, 1), nil)

	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
	api.AssertExpectations(t)
}

func TestClient_Embed_Batches(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{EmbeddingDimensions: 2, BatchSize: 2})

	api.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(inputOf(2))).
		Return(embeddingsResponse(2, 0, 1), nil).Twice()
	api.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(inputOf(1))).
		Return(embeddingsResponse(2, 0), nil).Once()

	vectors, err := client.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	api.AssertNumberOfCalls(t, "CreateEmbeddings", 3)
}

func TestClient_Embed_EmptyText(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{})

	vectors, err := client.Embed(context.Background(), []string{"ok", ""})

	assert.Nil(t, vectors)
	assert.Equal(t, ErrEmptyText, err)
	api.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}

func TestClient_Embed_APIError(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{})
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).
		Return(openai.EmbeddingResponse{}, errors.New("API rate limit exceeded"))

	_, err := client.Embed(context.Background(), []string{"text"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create embeddings")
}

func TestClient_Embed_WrongDimensions(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{EmbeddingDimensions: 8})
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(embeddingsResponse(4, 0), nil)

	_, err := client.Embed(context.Background(), []string{"text"})

	assert.True(t, errors.Is(err, ErrWrongDimensions))
}

func TestClient_Embed_MissingData(t *testing.T) {
	api := new(MockEmbeddingAPI)
	client := newClient(api, Config{EmbeddingDimensions: 2})
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(embeddingsResponse(2, 0), nil)

	_, err := client.Embed(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-api-key", BaseURL: "http://localhost:11434/v1"})

	require.NoError(t, err)
	assert.NotNil(t, client.api)
	assert.Equal(t, string(DefaultEmbeddingModel), client.Model())
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, DefaultBatchSize, client.batchSize)
}

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(Config{})

	assert.Equal(t, ErrNoAPIKey, err)
}
