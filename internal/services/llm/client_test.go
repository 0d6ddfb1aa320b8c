package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/services"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := New(config.LLMConfig{
		APIKey:         "test-key",
		BaseURL:        url,
		Model:          "test-model",
		TimeoutSeconds: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.LLMConfig{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
	if !services.IsInput(err) {
		t.Errorf("error not classified as input: %v", err)
	}
}

func TestCompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"answer\":42}"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	got, err := client.CompleteJSON(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"answer":42}` {
		t.Errorf("response = %q", got)
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	got, err := client.Complete(context.Background(), "", "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("response = %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Complete(context.Background(), "", "prompt"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", calls.Load())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"bare object", `{"split": true}`},
		{"json code fence", "```json\n{\"split\": true}\n```"},
		{"plain code fence", "```\n{\"split\": true}\n```"},
		{"surrounding prose", "Here is the result:\n{\"split\": true}\nHope that helps."},
	}
	for _, tt := range tests {
		var out struct {
			Split bool `json:"split"`
		}
		if err := DecodeJSON(tt.response, &out); err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !out.Split {
			t.Errorf("%s: value not decoded", tt.name)
		}
	}
}

func TestDecodeJSONInvalid(t *testing.T) {
	var out map[string]any
	if err := DecodeJSON("this is not json at all", &out); err == nil {
		t.Fatal("expected decode error")
	}
}
