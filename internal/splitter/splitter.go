// Package splitter detects back-to-back meetings captured as one recording
// and splits the transcript into separate parts. Detection is deliberately
// conservative: a transcript is only considered when it is long enough to
// plausibly contain more than one meeting, and a detected boundary below the
// confidence floor leaves the transcript whole.
package splitter

import (
	"context"
	"strings"
	"time"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/transcript"
)

// minBoundaryConfidence is the floor below which a reported boundary is
// ignored and the transcript stays whole.
const minBoundaryConfidence = 0.7

// Boundary is a point where one meeting ends and the next begins, anchored
// by short verbatim excerpts on each side.
type Boundary struct {
	Confidence float64 `json:"confidence"`
	TextBefore string  `json:"text_before"`
	TextAfter  string  `json:"text_after"`
}

// Detection is a detector's verdict on a transcript.
type Detection struct {
	MultipleMeetings bool       `json:"multiple_meetings"`
	Boundaries       []Boundary `json:"boundaries"`
}

// Detector judges whether a transcript contains multiple meetings.
type Detector interface {
	DetectBoundaries(ctx context.Context, t *transcript.Transcript) (Detection, error)
}

// Gates configures when split detection runs at all.
type Gates struct {
	// MinBodyChars and MinDuration must both be met for the standard gate.
	MinBodyChars int
	MinDuration  time.Duration
}

// ShouldConsider reports whether a transcript is worth running boundary
// detection on. Detection runs when the transcript is both long and lengthy,
// when the calendar shows two or more meetings overlapping its window, or,
// lacking any duration, when the body alone is twice the length gate.
func ShouldConsider(t *transcript.Transcript, g Gates, entries []calendar.Entry) bool {
	chars := transcript.BodyChars(t.Body)
	duration := t.Duration()

	if duration > 0 && chars >= g.MinBodyChars && duration >= g.MinDuration {
		return true
	}
	if t.HasWindow() && overlapping(entries, *t.MeetingStart, *t.MeetingEnd) >= 2 {
		return true
	}
	if duration == 0 && chars >= 2*g.MinBodyChars {
		return true
	}
	return false
}

func overlapping(entries []calendar.Entry, start, end time.Time) int {
	n := 0
	for i := range entries {
		if entries[i].Overlaps(start, end) {
			n++
		}
	}
	return n
}

// Split cuts a transcript at the detected boundaries. Parts are titled
// "-part1", "-part2"... and get proportionally interpolated meeting windows.
// A boundary whose anchors cannot be located in the body is dropped; when no
// usable boundary remains the original transcript is returned unchanged.
func Split(t *transcript.Transcript, det Detection) []transcript.Transcript {
	if !det.MultipleMeetings {
		return []transcript.Transcript{*t}
	}

	offsets := boundaryOffsets(t.Body, det.Boundaries)
	if len(offsets) == 0 {
		return []transcript.Transcript{*t}
	}

	runes := []rune(t.Body)
	total := len(runes)
	cuts := append([]int{0}, offsets...)
	cuts = append(cuts, total)

	parts := make([]transcript.Transcript, 0, len(cuts)-1)
	for i := 0; i < len(cuts)-1; i++ {
		body := strings.TrimSpace(string(runes[cuts[i]:cuts[i+1]]))
		if body == "" {
			continue
		}
		part := *t
		part.Title = transcript.PartTitle(t.Title, len(parts)+1)
		part.Body = body
		part.DurationSeconds = 0
		interpolateWindow(&part, t, cuts[i], cuts[i+1], total)
		parts = append(parts, part)
	}
	if len(parts) < 2 {
		return []transcript.Transcript{*t}
	}
	return parts
}

// boundaryOffsets resolves boundary anchors to rune offsets in body, in
// ascending order. Low-confidence or unlocatable boundaries are skipped,
// as are boundaries that would not advance past the previous cut.
func boundaryOffsets(body string, boundaries []Boundary) []int {
	var offsets []int
	prev := 0
	for _, b := range boundaries {
		if b.Confidence < minBoundaryConfidence {
			continue
		}
		off, ok := locate(body, prev, b)
		if !ok || off <= prev {
			continue
		}
		offsets = append(offsets, off)
		prev = off
	}
	return offsets
}

// locate finds the rune offset of the boundary: the end of TextBefore, or
// failing that the start of TextAfter, searching forward from byte offset of
// rune position from.
func locate(body string, from int, b Boundary) (int, bool) {
	runes := []rune(body)
	if from >= len(runes) {
		return 0, false
	}
	tail := string(runes[from:])

	if anchor := strings.TrimSpace(b.TextBefore); anchor != "" {
		if idx := strings.Index(tail, anchor); idx >= 0 {
			return from + len([]rune(tail[:idx])) + len([]rune(anchor)), true
		}
	}
	if anchor := strings.TrimSpace(b.TextAfter); anchor != "" {
		if idx := strings.Index(tail, anchor); idx >= 0 {
			return from + len([]rune(tail[:idx])), true
		}
	}
	return 0, false
}

// interpolateWindow assigns a part the slice of the original meeting window
// proportional to its share of the text. Parts of a window-less original
// keep no window.
func interpolateWindow(part, original *transcript.Transcript, startOff, endOff, total int) {
	if !original.HasWindow() || total == 0 {
		part.MeetingStart = nil
		part.MeetingEnd = nil
		return
	}
	span := original.MeetingEnd.Sub(*original.MeetingStart)
	start := original.MeetingStart.Add(span * time.Duration(startOff) / time.Duration(total))
	end := original.MeetingStart.Add(span * time.Duration(endOff) / time.Duration(total))
	part.MeetingStart = &start
	part.MeetingEnd = &end
	part.Interpolated = true
}
