package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eduverse/agent-core/agent/contract"
)

func TestPublishJSON(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		URL:         srv.URL,
		Token:       "test-token",
		Destination: "https://ops.example.com/hooks/degraded",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	err = c.PublishJSON(context.Background(), map[string]any{
		"event":  "run_degraded",
		"agent":  "tutor",
		"run_id": "r1",
	})
	if err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}
	if gotPath != "/v2/publish/https://ops.example.com/hooks/degraded" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("authorization = %s", gotAuth)
	}
	if gotBody["event"] != "run_degraded" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestPublishJSONServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Token: "bad", Destination: "dest"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.PublishJSON(context.Background(), map[string]string{"k": "v"}); !errors.Is(err, contract.ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Token: "t", Destination: "d"}); err == nil {
		t.Fatal("missing url accepted")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Destination: "d"}); err == nil {
		t.Fatal("missing token accepted")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Token: "t"}); err == nil {
		t.Fatal("missing destination accepted")
	}
}
