package mem0

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

const (
	maxResponseSizeBytes = 2 << 20
	defaultHistoryLimit  = 20
)

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" default:"https://api.mem0.ai"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
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

func WithHistoryLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// Client talks to a Mem0-style memory service over REST and implements
// contract.MemoryStore.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	historyLimit int
}

var _ contract.MemoryStore = (*Client)(nil)

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("mem0 url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid mem0 url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("mem0 token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:      baseURL,
		token:        token,
		httpClient:   &http.Client{Timeout: timeout},
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type memoryItem struct {
	ID       string         `json:"id"`
	Memory   string         `json:"memory"`
	Metadata map[string]any `json:"metadata"`
}

// ReadHistory assembles the learner's context snapshot from stored memories.
// A learner the service has never seen yields an empty context, not an error.
func (c *Client) ReadHistory(ctx context.Context, learnerID string) (*contract.LearnerContext, error) {
	if strings.TrimSpace(learnerID) == "" {
		return nil, fmt.Errorf("%w: learner id is empty", contract.ErrValidation)
	}

	endpoint := fmt.Sprintf("%s/v1/memories/?user_id=%s&limit=%d",
		c.baseURL, url.QueryEscape(learnerID), c.historyLimit)

	raw, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return contract.EmptyLearnerContext(learnerID), nil
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: mem0 status=%d body=%s", contract.ErrAdapterUnavailable, status, truncate(raw))
	}

	items, err := decodeMemories(raw)
	if err != nil {
		return nil, err
	}
	return buildContext(learnerID, items), nil
}

// WriteUpdate appends the run's interaction to the learner's memory.
func (c *Client) WriteUpdate(ctx context.Context, learnerID string, delta contract.MemoryDelta) error {
	if strings.TrimSpace(learnerID) == "" {
		return fmt.Errorf("%w: learner id is empty", contract.ErrValidation)
	}

	payload := map[string]any{
		"user_id": learnerID,
		"messages": []map[string]string{
			{"role": "user", "content": delta.UserInput},
			{"role": "assistant", "content": delta.AgentOutput},
		},
		"metadata": map[string]any{
			"agent":       string(delta.Agent),
			"topic":       delta.Topic,
			"subject":     delta.Subject,
			"performance": delta.Performance,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal memory update: %w", err)
	}

	raw, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/memories/", body)
	if err != nil {
		return err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: mem0 status=%d body=%s", contract.ErrAdapterUnavailable, status, truncate(raw))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build mem0 request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, 0, fmt.Errorf("%w: mem0: %v", contract.ErrAdapterTimeout, err)
		}
		return nil, 0, fmt.Errorf("%w: mem0: %v", contract.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read mem0 response: %v", contract.ErrAdapterUnavailable, err)
	}
	return raw, resp.StatusCode, nil
}

func decodeMemories(raw []byte) ([]memoryItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var items []memoryItem
	if err := json.Unmarshal(trimmed, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Results []memoryItem `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: decode mem0 response: %v", contract.ErrAdapterRejected, err)
	}
	return wrapped.Results, nil
}

func buildContext(learnerID string, items []memoryItem) *contract.LearnerContext {
	lc := contract.EmptyLearnerContext(learnerID)

	seenTopics := make(map[string]struct{})
	for _, item := range items {
		if memory := strings.TrimSpace(item.Memory); memory != "" {
			lc.Summary = append(lc.Summary, memory)
		}

		topic := metaString(item.Metadata, "topic")
		if topic != "" {
			if _, dup := seenTopics[topic]; !dup {
				seenTopics[topic] = struct{}{}
				lc.RecentTopics = append(lc.RecentTopics, topic)
			}
		}

		switch metaString(item.Metadata, "performance") {
		case "struggling", "needs_improvement":
			if topic != "" {
				lc.WeakAreas = appendUnique(lc.WeakAreas, topic)
			}
		case "good", "excellent":
			if topic != "" {
				lc.StrongAreas = appendUnique(lc.StrongAreas, topic)
			}
		}

		if style := metaString(item.Metadata, "learning_style"); style != "" {
			lc.LearningStyle = style
		}
		if grade := metaString(item.Metadata, "grade"); grade != "" {
			lc.Grade = grade
		}
	}
	return lc
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(raw []byte) string {
	const max = 256
	if len(raw) > max {
		raw = raw[:max]
	}
	return string(raw)
}
