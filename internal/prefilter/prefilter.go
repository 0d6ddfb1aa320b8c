// Package prefilter discards junk before a transcript enters the pipeline:
// accidental recordings, empty captures, and fragments too short to summarize.
package prefilter

import (
	"fmt"
	"time"

	"meetingnotesd/internal/transcript"
)

// Thresholds configures the junk filter.
type Thresholds struct {
	// MinBodyChars is the minimum trimmed body length in characters.
	MinBodyChars int
	// MinDuration is the minimum meeting length when a duration is known.
	MinDuration time.Duration
}

// Result describes a filter decision.
type Result struct {
	Junk   bool
	Reason string
}

// Check evaluates a transcript against the thresholds. A transcript with no
// known duration is judged on body length alone.
func Check(t *transcript.Transcript, th Thresholds) Result {
	if chars := transcript.BodyChars(t.Body); chars < th.MinBodyChars {
		return Result{Junk: true, Reason: fmt.Sprintf("body too short: %d chars (minimum %d)", chars, th.MinBodyChars)}
	}
	if d := t.Duration(); d > 0 && d < th.MinDuration {
		return Result{Junk: true, Reason: fmt.Sprintf("recording too short: %s (minimum %s)", d, th.MinDuration)}
	}
	return Result{}
}
