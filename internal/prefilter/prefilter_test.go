package prefilter

import (
	"strings"
	"testing"
	"time"

	"meetingnotesd/internal/transcript"
)

func TestCheck(t *testing.T) {
	th := Thresholds{MinBodyChars: 200, MinDuration: time.Minute}
	longBody := strings.Repeat("a real discussion ", 20)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	shortEnd := start.Add(30 * time.Second)
	longEnd := start.Add(30 * time.Minute)

	tests := []struct {
		name string
		tr   transcript.Transcript
		junk bool
	}{
		{"short body", transcript.Transcript{Body: "hi"}, true},
		{"whitespace padding does not count", transcript.Transcript{Body: "hi" + strings.Repeat(" ", 300)}, true},
		{"short duration", transcript.Transcript{Body: longBody, MeetingStart: &start, MeetingEnd: &shortEnd}, true},
		{"explicit short duration", transcript.Transcript{Body: longBody, DurationSeconds: 10}, true},
		{"long enough", transcript.Transcript{Body: longBody, MeetingStart: &start, MeetingEnd: &longEnd}, false},
		{"no duration judged on body", transcript.Transcript{Body: longBody}, false},
	}

	for _, tt := range tests {
		got := Check(&tt.tr, th)
		if got.Junk != tt.junk {
			t.Errorf("%s: Junk = %v, want %v (reason %q)", tt.name, got.Junk, tt.junk, got.Reason)
		}
		if got.Junk && got.Reason == "" {
			t.Errorf("%s: junk verdict needs a reason", tt.name)
		}
	}
}
