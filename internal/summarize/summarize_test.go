package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/config"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/services/llm"
	"meetingnotesd/internal/transcript"
)

func newTestEngine(t *testing.T, serverURL, promptFile string) *LLMEngine {
	t.Helper()
	client, err := llm.New(config.LLMConfig{APIKey: "key", BaseURL: serverURL, Model: "m", TimeoutSeconds: 5})
	if err != nil {
		t.Fatal(err)
	}
	return NewLLMEngine(client, promptFile, logging.NewNop())
}

func completionServer(t *testing.T, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			json.NewDecoder(r.Body).Decode(capture)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"## Summary\nIt went well."}}]}`))
	}))
}

func TestSummarizeIncludesContext(t *testing.T) {
	var captured map[string]any
	server := completionServer(t, &captured)
	defer server.Close()

	engine := newTestEngine(t, server.URL, "")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tr := transcript.Transcript{
		Title:        "Roadmap",
		Body:         "we talked about the roadmap",
		MeetingStart: &start,
		MeetingEnd:   &end,
	}
	entry := &calendar.Entry{Title: "Roadmap Review", Participants: []string{"Alice", "Bob"}}

	notes, err := engine.Summarize(context.Background(), &tr, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(notes, "It went well.") {
		t.Errorf("notes = %q", notes)
	}

	messages := captured["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)["content"].(string)
	for _, want := range []string{"Roadmap", "Scheduled as: Roadmap Review", "Alice, Bob", "we talked about the roadmap"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSummarizeMarksApproximateTiming(t *testing.T) {
	var captured map[string]any
	server := completionServer(t, &captured)
	defer server.Close()

	engine := newTestEngine(t, server.URL, "")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tr := transcript.Transcript{Title: "X", Body: "b", MeetingStart: &start, MeetingEnd: &end, Interpolated: true}

	if _, err := engine.Summarize(context.Background(), &tr, nil); err != nil {
		t.Fatal(err)
	}
	messages := captured["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "approximate") {
		t.Error("interpolated timing not flagged in prompt")
	}
}

func TestPromptFileOverridesBuiltIn(t *testing.T) {
	var captured map[string]any
	server := completionServer(t, &captured)
	defer server.Close()

	promptFile := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(promptFile, []byte("Custom house style."), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, server.URL, promptFile)
	tr := transcript.Transcript{Title: "X", Body: "b"}
	if _, err := engine.Summarize(context.Background(), &tr, nil); err != nil {
		t.Fatal(err)
	}

	messages := captured["messages"].([]any)
	system := messages[0].(map[string]any)["content"].(string)
	if system != "Custom house style." {
		t.Errorf("system prompt = %q", system)
	}
}

func TestMissingPromptFileFallsBack(t *testing.T) {
	var captured map[string]any
	server := completionServer(t, &captured)
	defer server.Close()

	engine := newTestEngine(t, server.URL, filepath.Join(t.TempDir(), "absent.txt"))
	tr := transcript.Transcript{Title: "X", Body: "b"}
	if _, err := engine.Summarize(context.Background(), &tr, nil); err != nil {
		t.Fatal(err)
	}
	messages := captured["messages"].([]any)
	system := messages[0].(map[string]any)["content"].(string)
	if !strings.Contains(system, "note taker") {
		t.Errorf("expected built-in prompt, got %q", system)
	}
}

func TestTitleFromNotes(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  string
	}{
		{"level-1 heading", "# Planning Review\n\n## Summary\nFine.", "Planning Review"},
		{"leading blank lines", "\n\n# Standup\ntext", "Standup"},
		{"section heading only", "## Summary\nFine.", ""},
		{"no heading", "Just prose notes.", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		if got := TitleFromNotes(tt.notes); got != tt.want {
			t.Errorf("%s: TitleFromNotes = %q, want %q", tt.name, got, tt.want)
		}
	}
}
