package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eduverse/agent-core/agent/contract"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL, APIKey: "test-key"}, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestQuery(t *testing.T) {
	t.Parallel()

	var received map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Fractions explained","url":"https://example.com/fractions","content":"A short primer.","score":0.92},
			{"title":"No url entry","url":"","content":"dropped","score":0.5}
		]}`))
	})

	candidates, err := c.Query(context.Background(), "fractions", "video", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if received["api_key"] != "test-key" {
		t.Fatalf("api_key = %v", received["api_key"])
	}
	if received["query"] != "fractions video tutorial" {
		t.Fatalf("query = %v", received["query"])
	}
	if received["max_results"] != float64(3) {
		t.Fatalf("max_results = %v", received["max_results"])
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (empty url dropped)", len(candidates))
	}
	got := candidates[0]
	if got.Title != "Fractions explained" || got.ResourceType != "video" || got.Source != "tavily" {
		t.Fatalf("candidate = %+v", got)
	}
	if got.Score != 0.92 {
		t.Fatalf("score = %v", got.Score)
	}
}

func TestQueryEmptyResultsIsValid(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	candidates, err := c.Query(context.Background(), "obscure topic", "book", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %v, want none", candidates)
	}
}

func TestQueryServerError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Query(context.Background(), "fractions", "video", 3)
	if !errors.Is(err, contract.ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}

func TestQueryMalformedResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.Query(context.Background(), "fractions", "video", 3)
	if !errors.Is(err, contract.ErrAdapterRejected) {
		t.Fatalf("err = %v, want ErrAdapterRejected", err)
	}
}

func TestQueryEmptyTerms(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.Query(context.Background(), "  ", "video", 3); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
