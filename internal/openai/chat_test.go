package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/docqa/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChatAPI is a mock for the OpenAI chat completions API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func chatResponse(content string, reason openai.FinishReason) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: reason,
		}},
	}
}

func TestChatClient_Generate(t *testing.T) {
	api := new(MockChatAPI)
	client := newChatClient(api, "")
	opts := domain.DefaultGenerationOptions()

	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == DefaultChatModel &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "prompt" &&
			req.Temperature == opts.Temperature &&
			req.TopP == opts.TopP &&
			req.MaxTokens == opts.MaxTokens
	})).Return(chatResponse("  The answer.  ", openai.FinishReasonStop), nil)

	text, err := client.Generate(context.Background(), "prompt", opts)

	require.NoError(t, err)
	assert.Equal(t, "The answer.", text)
	assert.Equal(t, "openai", client.Provider())
	api.AssertExpectations(t)
}

func TestChatClient_GenerateBlocked(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
	}{
		{"content filter", chatResponse("partial", openai.FinishReasonContentFilter)},
		{"empty text", chatResponse("   ", openai.FinishReasonStop)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockChatAPI)
			api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(tt.resp, nil)

			_, err := newChatClient(api, "gpt-4o").Generate(context.Background(), "p", domain.DefaultGenerationOptions())

			assert.True(t, errors.Is(err, ErrBlockedResponse))
		})
	}
}

func TestChatClient_GenerateErrors(t *testing.T) {
	api := new(MockChatAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("invalid api key")).Once()
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, nil).Once()
	client := newChatClient(api, "gpt-4o")

	_, err := client.Generate(context.Background(), "p", domain.GenerationOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")

	_, err = client.Generate(context.Background(), "p", domain.GenerationOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
