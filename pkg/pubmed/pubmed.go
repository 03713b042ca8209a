package pubmed

import (
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

const maxResponseSizeBytes = 2 << 20

// Config points at the NCBI E-utilities endpoint used for literature search.
type Config struct {
	URL        string        `envconfig:"URL" split_words:"true" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	APIKey     string        `envconfig:"API_KEY" split_words:"true"`
	MaxResults int           `envconfig:"MAX_RESULTS" split_words:"true" default:"5"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// Article is one literature hit.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Journal string `json:"journal"`
	URL     string `json:"url"`
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
	maxResults int
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("pubmed url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pubmed url: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search queries PubMed for the term and resolves article summaries.
func (c *Client) Search(ctx context.Context, term string) ([]Article, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("search term is empty")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", fmt.Sprint(c.maxResults))
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var search esearchResponse
	if err := c.get(ctx, "/esearch.fcgi", params, &search); err != nil {
		return nil, err
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	return c.summaries(ctx, ids)
}

func (c *Client) summaries(ctx context.Context, ids []string) ([]Article, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "json")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	// esummary keys the result map by article id.
	var parsed struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := c.get(ctx, "/esummary.fcgi", params, &parsed); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(ids))
	for _, id := range ids {
		raw, ok := parsed.Result[id]
		if !ok {
			continue
		}
		var summary struct {
			Title    string `json:"title"`
			FullJrnl string `json:"fulljournalname"`
		}
		if err := json.Unmarshal(raw, &summary); err != nil {
			continue
		}
		articles = append(articles, Article{
			ID:      id,
			Title:   strings.TrimSpace(summary.Title),
			Journal: strings.TrimSpace(summary.FullJrnl),
			URL:     "https://pubmed.ncbi.nlm.nih.gov/" + id + "/",
		})
	}
	return articles, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build pubmed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute pubmed request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read pubmed response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("pubmed http status=%d body=%s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode pubmed response: %w", err)
	}
	return nil
}
