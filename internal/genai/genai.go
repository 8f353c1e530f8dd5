// Package genai wraps the OpenAI API for reply generation, conversation
// summarization, and text embeddings.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/astronow/astronow/internal/models"
)

// Client wraps the OpenAI client with the models this service uses.
type Client struct {
	api        openai.Client
	chatModel  openai.ChatModel
	embedModel openai.EmbeddingModel
}

// Option configures the Client.
type Option func(*Client)

// WithChatModel overrides the default chat model.
func WithChatModel(m openai.ChatModel) Option {
	return func(c *Client) { c.chatModel = m }
}

// WithEmbeddingModel overrides the default embedding model.
func WithEmbeddingModel(m openai.EmbeddingModel) Option {
	return func(c *Client) { c.embedModel = m }
}

// NewClient creates a client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	c := &Client{
		api:        openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel:  openai.ChatModelGPT4oMini,
		embedModel: openai.EmbeddingModelTextEmbedding3Small,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate produces a completion from a system prompt and conversation
// history, oldest message first. The history is translated role by role so
// the model sees the exchange as it happened.
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	for _, msg := range history {
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		default:
			messages = append(messages, openai.UserMessage(msg.Text))
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("GenAI completion generated", "model", c.chatModel, "historyLen", len(history), "responseLen", len(text))
	return text, nil
}

// Summarize condenses a batch of messages into a short third-person summary
// used as long-term conversation memory.
func (c *Client) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	const summaryPrompt = "Summarize this conversation excerpt in 2-3 sentences. " +
		"Keep names, dates, zodiac signs, and emotional context. Write in third person."

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(summaryPrompt),
		openai.UserMessage(b.String()),
	}
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
