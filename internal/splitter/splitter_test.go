package splitter

import (
	"strings"
	"testing"
	"time"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/transcript"
)

func gates() Gates {
	return Gates{MinBodyChars: 5000, MinDuration: time.Hour}
}

func windowed(body string, d time.Duration) transcript.Transcript {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(d)
	return transcript.Transcript{Title: "Long Block", Body: body, MeetingStart: &start, MeetingEnd: &end}
}

func TestShouldConsider(t *testing.T) {
	long := strings.Repeat("x", 6000)
	short := strings.Repeat("x", 1000)

	tests := []struct {
		name string
		tr   transcript.Transcript
		want bool
	}{
		{"long and lengthy", windowed(long, 2*time.Hour), true},
		{"long body short duration", windowed(long, 30*time.Minute), false},
		{"short body long duration", windowed(short, 2*time.Hour), false},
		{"no duration, double body", transcript.Transcript{Body: strings.Repeat("x", 10000)}, true},
		{"no duration, single body", transcript.Transcript{Body: long}, false},
	}
	for _, tt := range tests {
		if got := ShouldConsider(&tt.tr, gates(), nil); got != tt.want {
			t.Errorf("%s: ShouldConsider = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestShouldConsiderCalendarOverride(t *testing.T) {
	entries := calendar.Parse("* First <2026-03-02 Mon 09:00-10:00>\n* Second <2026-03-02 Mon 10:00-11:00>\n")
	start, _ := time.ParseInLocation("2006-01-02 15:04", "2026-03-02 09:00", time.Local)
	end := start.Add(2 * time.Hour)
	tr := transcript.Transcript{Body: strings.Repeat("x", 1000), MeetingStart: &start, MeetingEnd: &end}

	if !ShouldConsider(&tr, gates(), entries) {
		t.Error("two overlapping calendar entries should trigger detection regardless of length")
	}
	if ShouldConsider(&tr, gates(), entries[:1]) {
		t.Error("a single overlapping entry is not enough")
	}
}

func TestSplitAtAnchors(t *testing.T) {
	body := "first meeting content here. thanks everyone, bye! hello all, welcome to the second meeting. more content follows."
	tr := windowed(body, 2*time.Hour)

	det := Detection{
		MultipleMeetings: true,
		Boundaries: []Boundary{{
			Confidence: 0.9,
			TextBefore: "thanks everyone, bye!",
			TextAfter:  "hello all,",
		}},
	}

	parts := Split(&tr, det)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].Title != "Long Block-part1" || parts[1].Title != "Long Block-part2" {
		t.Errorf("titles = %q, %q", parts[0].Title, parts[1].Title)
	}
	if !strings.HasSuffix(parts[0].Body, "bye!") {
		t.Errorf("part1 body = %q", parts[0].Body)
	}
	if !strings.HasPrefix(parts[1].Body, "hello all,") {
		t.Errorf("part2 body = %q", parts[1].Body)
	}
}

func TestSplitInterpolatesWindows(t *testing.T) {
	half := strings.Repeat("a", 500)
	body := half + "|CUT|" + half
	tr := windowed(body, 2*time.Hour)

	det := Detection{
		MultipleMeetings: true,
		Boundaries:       []Boundary{{Confidence: 1.0, TextBefore: "|CUT|"}},
	}
	parts := Split(&tr, det)
	if len(parts) != 2 {
		t.Fatalf("got %d parts", len(parts))
	}

	if !parts[0].MeetingStart.Equal(*tr.MeetingStart) {
		t.Errorf("part1 start = %v", parts[0].MeetingStart)
	}
	if !parts[1].MeetingEnd.Equal(*tr.MeetingEnd) {
		t.Errorf("part2 end = %v", parts[1].MeetingEnd)
	}
	// Cut lands at the midpoint, so the boundary time should too.
	mid := tr.MeetingStart.Add(time.Hour)
	diff := parts[0].MeetingEnd.Sub(mid)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Minute {
		t.Errorf("boundary time = %v, want about %v", parts[0].MeetingEnd, mid)
	}
	if !parts[0].Interpolated || !parts[1].Interpolated {
		t.Error("split windows must be marked interpolated")
	}
}

func TestSplitLowConfidenceLeavesWhole(t *testing.T) {
	tr := windowed("some body text with a possible break in it", time.Hour)
	det := Detection{
		MultipleMeetings: true,
		Boundaries:       []Boundary{{Confidence: 0.5, TextBefore: "possible break"}},
	}
	parts := Split(&tr, det)
	if len(parts) != 1 {
		t.Fatalf("low-confidence boundary must not split, got %d parts", len(parts))
	}
	if parts[0].Title != tr.Title {
		t.Errorf("title = %q", parts[0].Title)
	}
}

func TestSplitUnlocatableAnchorLeavesWhole(t *testing.T) {
	tr := windowed("body without the anchor", time.Hour)
	det := Detection{
		MultipleMeetings: true,
		Boundaries:       []Boundary{{Confidence: 0.9, TextBefore: "nowhere to be found"}},
	}
	if parts := Split(&tr, det); len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
}

func TestSplitNoDetection(t *testing.T) {
	tr := windowed("plain single meeting", time.Hour)
	parts := Split(&tr, Detection{MultipleMeetings: false})
	if len(parts) != 1 || parts[0].Body != tr.Body {
		t.Fatalf("unexpected split: %d parts", len(parts))
	}
}
