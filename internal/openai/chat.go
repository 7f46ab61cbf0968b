package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docqa/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultChatModel is the chat model used for answer synthesis
const DefaultChatModel = openai.GPT4oMini

// ErrBlockedResponse is returned when the provider filtered or withheld the
// answer.
var ErrBlockedResponse = errors.New("response blocked by content filter")

// ChatAPI is the subset of the OpenAI client used for chat completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient synthesizes answers with the chat completions endpoint.
type ChatClient struct {
	api   ChatAPI
	model string
}

// NewChatClient creates a chat client from cfg.
func NewChatClient(cfg Config) (*ChatClient, error) {
	api, err := NewAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	return newChatClient(api, cfg.ChatModel), nil
}

func newChatClient(api ChatAPI, model string) *ChatClient {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{api: api, model: model}
}

// Provider names the synthesis provider.
func (c *ChatClient) Provider() string { return "openai" }

// Model returns the chat model name.
func (c *ChatClient) Model() string { return c.model }

// Generate sends prompt as a single user message. Top-k and safety
// thresholds have no chat completions equivalent and are ignored.
func (c *ChatClient) Generate(ctx context.Context, prompt string, opts domain.GenerationOptions) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", ErrBlockedResponse
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", ErrBlockedResponse
	}
	return text, nil
}
