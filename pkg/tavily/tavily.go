package tavily

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

	"github.com/eduverse/agent-core/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" default:"https://api.tavily.com"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client is the Tavily search adapter; it implements contract.Search.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ contract.Search = (*Client)(nil)

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("tavily url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid tavily url: %w", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("tavily api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Query searches for educational content of one resource type. An empty
// result list is a valid answer, not an error.
func (c *Client) Query(ctx context.Context, terms string, resourceType string, maxResults int) ([]contract.Candidate, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return nil, fmt.Errorf("%w: search terms are empty", contract.ErrValidation)
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	query := terms
	if rt := strings.TrimSpace(resourceType); rt != "" {
		query = fmt.Sprintf("%s %s tutorial", terms, rt)
	}

	payload := map[string]any{
		"api_key":     c.apiKey,
		"query":       query,
		"max_results": maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: tavily: %v", contract.ErrAdapterTimeout, err)
		}
		return nil, fmt.Errorf("%w: tavily: %v", contract.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read tavily response: %v", contract.ErrAdapterUnavailable, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: tavily status=%d", contract.ErrAdapterUnavailable, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode tavily response: %v", contract.ErrAdapterRejected, err)
	}

	candidates := make([]contract.Candidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		candidates = append(candidates, contract.Candidate{
			Title:        strings.TrimSpace(r.Title),
			URL:          r.URL,
			Snippet:      strings.TrimSpace(r.Content),
			ResourceType: resourceType,
			Score:        r.Score,
			Source:       "tavily",
		})
	}
	return candidates, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
