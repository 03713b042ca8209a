package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 4 << 20

type Config struct {
	URL        string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey     string        `envconfig:"API_KEY" split_words:"true"`
	Collection string        `envconfig:"COLLECTION" split_words:"true" default:"medical_assistance_rag"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Chunk is one scored document chunk returned by a similarity search.
type Chunk struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client talks to a Qdrant collection over its REST API.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}

	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		return nil, errors.New("qdrant collection is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		ID      json.Number    `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
	Status json.RawMessage `json:"status"`
}

// Search runs a similarity search against the configured collection and
// returns scored chunks in descending relevance order.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]Chunk, error) {
	if len(vector) == 0 {
		return nil, errors.New("search vector is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	body, err := json.Marshal(searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute search request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("qdrant http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	chunks := make([]Chunk, 0, len(parsed.Result))
	for _, point := range parsed.Result {
		chunk := Chunk{
			ID:    point.ID.String(),
			Score: point.Score,
		}
		if text, ok := point.Payload["text"].(string); ok {
			chunk.Text = text
		}
		if source, ok := point.Payload["source"].(string); ok {
			chunk.Source = source
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
