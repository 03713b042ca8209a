package medvision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 16 << 20

// Config points at the model-serving service that hosts the diagnostic
// vision models. The service is a black box: one endpoint per task.
type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// Prediction is the raw inference outcome for one image. Confidence is
// reported as given by the backend; callers own range validation.
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Overlay       []byte             `json:"-"`
	OverlayMIME   string             `json:"-"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("medvision url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid medvision url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type inferResponse struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	OverlayB64    string             `json:"overlay_b64"`
	OverlayMIME   string             `json:"overlay_mime"`
	Error         string             `json:"error"`
}

// Infer runs the model for the given task ("brain-mri", "chest-xray",
// "skin-lesion") on one image and returns the prediction.
func (c *Client) Infer(ctx context.Context, task string, image []byte, mime string) (*Prediction, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, errors.New("inference task is required")
	}
	if len(image) == 0 {
		return nil, errors.New("inference image is empty")
	}

	raw, err := c.post(ctx, "/v1/infer/"+task, image, mime)
	if err != nil {
		return nil, err
	}

	var parsed inferResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}

	pred := &Prediction{
		Label:         strings.TrimSpace(parsed.Label),
		Confidence:    parsed.Confidence,
		Probabilities: parsed.Probabilities,
	}
	if parsed.OverlayB64 != "" {
		overlay, err := base64.StdEncoding.DecodeString(parsed.OverlayB64)
		if err != nil {
			return nil, fmt.Errorf("decode overlay image: %w", err)
		}
		pred.Overlay = overlay
		pred.OverlayMIME = parsed.OverlayMIME
		if pred.OverlayMIME == "" {
			pred.OverlayMIME = "image/png"
		}
	}
	return pred, nil
}

type modalityResponse struct {
	Modality   string  `json:"modality"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// DetectModality classifies what kind of medical image this is
// ("brain-mri", "chest-xray", "skin-lesion", or "unknown").
func (c *Client) DetectModality(ctx context.Context, image []byte, mime string) (string, float64, error) {
	if len(image) == 0 {
		return "", 0, errors.New("modality image is empty")
	}

	raw, err := c.post(ctx, "/v1/modality", image, mime)
	if err != nil {
		return "", 0, err
	}

	var parsed modalityResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("decode modality response: %w", err)
	}
	if parsed.Error != "" {
		return "", 0, errors.New(parsed.Error)
	}
	return strings.ToLower(strings.TrimSpace(parsed.Modality)), parsed.Confidence, nil
}

func (c *Client) post(ctx context.Context, path string, image []byte, mime string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute inference request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("medvision http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
