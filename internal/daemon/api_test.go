package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/transcript"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataRepo = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Git.AutoCommit = false
	cfg.Git.AutoPush = false
	cfg.Sync.Enabled = false

	d, err := New(&cfg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.store.Close() })
	return d
}

func postWebhook(t *testing.T, d *Daemon, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func validPayload() string {
	body, _ := json.Marshal(map[string]any{
		"title":            "Weekly Sync",
		"transcript":       strings.Repeat("Alice: let's review the roadmap together. ", 10),
		"meeting_start":    "2026-03-02T10:00:00Z",
		"meeting_end":      "2026-03-02T10:30:00Z",
		"recording_source": "laptop",
	})
	return string(body)
}

func TestWebhookStoresAndProcesses(t *testing.T) {
	d := testDaemon(t)
	rec := postWebhook(t, d, validPayload())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Errorf("response status = %q (%s)", resp.Status, resp.Message)
	}
	if resp.Filename != "20260302-weekly-sync.md" {
		t.Errorf("filename = %q", resp.Filename)
	}

	// Standalone sync dispatch processed and archived the transcript.
	archived := filepath.Join(d.cfg.TranscriptsDir(), resp.Filename)
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("archived transcript missing: %v", err)
	}

	list, err := d.store.List(t.Context(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Status != jobs.StatusSucceeded {
		t.Errorf("jobs = %+v", list)
	}
}

func TestWebhookRejectsDuplicate(t *testing.T) {
	d := testDaemon(t)

	first := decodeResponse(t, postWebhook(t, d, validPayload()))
	if first.Status != "success" {
		t.Fatalf("first delivery: %+v", first)
	}

	rec := postWebhook(t, d, validPayload())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	second := decodeResponse(t, rec)
	if second.Status != "duplicate" {
		t.Errorf("second delivery status = %q", second.Status)
	}

	// Only one transcript stored.
	entries, _ := os.ReadDir(d.cfg.TranscriptsDir())
	if len(entries) != 1 {
		t.Errorf("archived %d transcripts, want 1", len(entries))
	}

	dedup, err := d.store.List(t.Context(), jobs.StatusDeduplicated, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(dedup) != 1 {
		t.Errorf("deduplicated jobs = %d, want 1", len(dedup))
	}
}

func TestWebhookRetryAfterStoreFailure(t *testing.T) {
	d := testDaemon(t)

	// A file squatting on the inbox path makes the store fail.
	if err := os.WriteFile(d.cfg.InboxDir(), []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := postWebhook(t, d, validPayload())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// The retry of the identical payload must be accepted, not deduplicated.
	if err := os.Remove(d.cfg.InboxDir()); err != nil {
		t.Fatal(err)
	}
	resp := decodeResponse(t, postWebhook(t, d, validPayload()))
	if resp.Status != "success" {
		t.Errorf("retry after failed store: %+v", resp)
	}
}

func TestWebhookValidation(t *testing.T) {
	d := testDaemon(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty title", `{"title":"","transcript":"x"}`, http.StatusBadRequest},
		{"missing transcript", `{"title":"Sync"}`, http.StatusBadRequest},
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"bad timestamp", `{"title":"Sync","transcript":"x","meeting_start":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := postWebhook(t, d, tt.body)
		if rec.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.code)
		}
	}
}

func TestWebhookRejectsOversizedTranscript(t *testing.T) {
	d := testDaemon(t)
	big, _ := json.Marshal(map[string]string{
		"title":      "Big",
		"transcript": strings.Repeat("a", MaxTranscriptSize+1),
	})
	rec := postWebhook(t, d, string(big))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestWebhookDurationOnlyDerivesWindow(t *testing.T) {
	d := testDaemon(t)
	body, _ := json.Marshal(map[string]any{
		"title":      "No Window",
		"transcript": strings.Repeat("discussion happened here today at length. ", 10),
		"duration":   1800,
	})
	resp := decodeResponse(t, postWebhook(t, d, string(body)))
	if resp.Status != "success" {
		t.Fatalf("response: %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(d.cfg.TranscriptsDir(), resp.Filename))
	if err != nil {
		t.Fatal(err)
	}
	doc := transcript.ParseDocument(string(data))
	if doc.Get(transcript.FieldMeetingStart) == "" || doc.Get(transcript.FieldMeetingEnd) == "" {
		t.Error("window not derived from duration")
	}
	if doc.Get(transcript.FieldTiming) != transcript.TimingInterpolated {
		t.Error("derived window should be marked interpolated")
	}
}

func TestWebhookAcceptsTimeAliases(t *testing.T) {
	d := testDaemon(t)
	body, _ := json.Marshal(map[string]any{
		"title":      "Alias Window",
		"transcript": strings.Repeat("notes from a meeting that really happened. ", 10),
		"start_time": "2026-03-02T14:00:00Z",
		"end_time":   "2026-03-02T15:00:00Z",
	})
	resp := decodeResponse(t, postWebhook(t, d, string(body)))
	if resp.Status != "success" {
		t.Fatalf("response: %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(d.cfg.TranscriptsDir(), resp.Filename))
	if err != nil {
		t.Fatal(err)
	}
	doc := transcript.ParseDocument(string(data))
	if doc.Get(transcript.FieldMeetingStart) == "" {
		t.Error("start_time alias not honored")
	}
}

func TestCalendarEndpoint(t *testing.T) {
	d := testDaemon(t)
	agenda := "* Sync <2026-03-02 Mon 10:00-10:30>\n"

	req := httptest.NewRequest(http.MethodPost, "/calendar", strings.NewReader(agenda))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	data, err := os.ReadFile(d.cfg.CalendarPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != agenda {
		t.Errorf("stored calendar = %q", string(data))
	}
}

func TestCalendarEndpointJSON(t *testing.T) {
	d := testDaemon(t)
	body, _ := json.Marshal(map[string]string{"calendar": "* Sync <2026-03-02 Mon 10:00-10:30>\n"})

	req := httptest.NewRequest(http.MethodPost, "/calendar", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestCalendarEndpointRejectsEmpty(t *testing.T) {
	d := testDaemon(t)
	req := httptest.NewRequest(http.MethodPost, "/calendar", strings.NewReader("   "))
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRootEndpoint(t *testing.T) {
	d := testDaemon(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["service"] != "meetingnotesd" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d := testDaemon(t)
	postWebhook(t, d, validPayload())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["mode"] != "standalone" {
		t.Errorf("mode = %v", body["mode"])
	}
	if _, ok := body["jobs"]; !ok {
		t.Error("jobs counts missing")
	}
	if dirty, ok := body["dirty"].(bool); !ok || dirty {
		t.Errorf("dirty = %v, want false", body["dirty"])
	}
}

func TestDedupSet(t *testing.T) {
	s := newDedupSet(2)
	if s.Add("a") {
		t.Error("first add should be new")
	}
	if !s.Add("a") {
		t.Error("second add should report duplicate")
	}
	s.Add("b")
	s.Add("c") // evicts a
	if s.Add("a") {
		t.Error("evicted fingerprint should be accepted again")
	}
	s.Remove("a")
	if s.Add("a") {
		t.Error("removed fingerprint should be accepted again")
	}
}
