package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/logging"
)

func TestUnconfiguredTopicIsNoop(t *testing.T) {
	svc := New(config.Notifications{}, logging.NewNop())
	// Must not panic or block.
	svc.TranscriptStored(context.Background(), "Sync", "a.md")
	svc.ProcessingFailed(context.Background(), "Sync", "boom", "hint")
}

type captured struct {
	title    string
	priority string
	body     string
}

func TestPublish(t *testing.T) {
	var mu sync.Mutex
	var got []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	defer server.Close()

	svc := New(config.Notifications{NtfyTopic: server.URL, RequestTimeout: 5}, logging.NewNop())
	ctx := context.Background()

	svc.TranscriptStored(ctx, "Weekly Sync", "20260302-weekly-sync.md")
	svc.ProcessingFailed(ctx, "Weekly Sync", "llm unavailable", "temporary failure, will be retried")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("received %d notifications, want 2", len(got))
	}
	if got[0].title != "Transcript received" {
		t.Errorf("title = %q", got[0].title)
	}
	if got[1].priority != "high" {
		t.Errorf("failure priority = %q", got[1].priority)
	}
	if want := "Weekly Sync: llm unavailable\nHint: temporary failure, will be retried"; got[1].body != want {
		t.Errorf("body = %q", got[1].body)
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := New(config.Notifications{NtfyTopic: server.URL, RequestTimeout: 5}, logging.NewNop())
	// A rejected notification must not panic or surface an error.
	svc.TranscriptDiscarded(context.Background(), "Sync", "too short")
}
