package transcript

import (
	"strings"
	"testing"
)

func TestParseDocumentRoundTrip(t *testing.T) {
	content := "---\ntitle: Weekly Sync\nreceived_at: 2026-03-02T10:00:00Z\n---\n\nAlice: hi everyone\nBob: hello\n"
	doc := ParseDocument(content)

	if got := doc.Get("title"); got != "Weekly Sync" {
		t.Errorf("title = %q, want %q", got, "Weekly Sync")
	}
	if got := doc.Get("received_at"); got != "2026-03-02T10:00:00Z" {
		t.Errorf("received_at = %q", got)
	}
	if !strings.HasPrefix(doc.Body, "Alice: hi everyone") {
		t.Errorf("body = %q", doc.Body)
	}

	rendered := doc.Render()
	again := ParseDocument(rendered)
	if again.Get("title") != doc.Get("title") || again.Body != doc.Body {
		t.Errorf("round trip mismatch:\n%q\nvs\n%q", rendered, content)
	}
}

func TestParseDocumentWithoutFrontMatter(t *testing.T) {
	doc := ParseDocument("just a transcript body\nwith two lines")
	if len(doc.Fields) != 0 {
		t.Fatalf("unexpected fields: %v", doc.Fields)
	}
	if doc.Body != "just a transcript body\nwith two lines" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParseDocumentUnterminatedBlock(t *testing.T) {
	content := "---\ntitle: broken\nno closing delimiter"
	doc := ParseDocument(content)
	if len(doc.Fields) != 0 {
		t.Errorf("unterminated block should parse as body, got fields %v", doc.Fields)
	}
	if doc.Body != content {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestDocumentSet(t *testing.T) {
	doc := Document{Body: "body"}
	doc.Set("title", "First")
	doc.Set("title", "Second")
	if got := doc.Get("title"); got != "Second" {
		t.Errorf("title = %q, want Second", got)
	}
	if len(doc.Fields) != 1 {
		t.Errorf("fields = %v, want one entry", doc.Fields)
	}

	doc.Set("title", "")
	if got := doc.Get("title"); got != "" {
		t.Errorf("title after removal = %q", got)
	}
}

func TestHasFrontMatter(t *testing.T) {
	if !HasFrontMatter("---\ntitle: x\n---\nbody") {
		t.Error("expected front matter to be detected")
	}
	if HasFrontMatter("plain body") {
		t.Error("plain body should not count as front matter")
	}
	if !HasFrontMatter("\uFEFF---\ntitle: x\n---\nbody") {
		t.Error("byte order mark should not hide front matter")
	}
}
