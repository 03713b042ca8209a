package llmx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config describes one OpenAI-compatible chat endpoint. The base URL may
// point at OpenAI, Azure OpenAI, or any proxy speaking the same protocol.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llm api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("llm model is required")
	}
	return nil
}

// Client wraps the OpenAI SDK with the model and sampling parameters fixed
// at construction time.
type Client struct {
	sdk            openaisdk.Client
	model          string
	embeddingModel string
	maxTokens      int64
	temperature    float64
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(timeout),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	maxTokens := cfg.MaxCompletionToken
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &Client{
		sdk:            openaisdk.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		maxTokens:      int64(maxTokens),
		temperature:    float64(cfg.Temperature),
	}, nil
}

// Complete runs one chat completion with a system and a user message and
// returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openaisdk.SystemMessage(system))
	}
	messages = append(messages, openaisdk.UserMessage(user))

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(c.model),
		Messages:            messages,
		Temperature:         openaisdk.Float(c.temperature),
		MaxCompletionTokens: openaisdk.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return content, nil
}

// Embed returns the embedding vector for one text input.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embedding input is empty")
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(c.embeddingModel),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response is empty")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
