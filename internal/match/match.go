// Package match links a transcript to the calendar entry it most likely
// records. Scoring is fully deterministic: time overlap, title similarity,
// and participant mentions combine into a confidence, with a small bonus
// from recent-note memory to break ties between same-slot candidates.
package match

import (
	"sort"
	"strings"
	"time"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/transcript"
)

// Score weights. Time overlap dominates: a transcript recorded during a
// meeting's slot is strong evidence regardless of what the capture device
// titled it.
const (
	timeWeight        = 0.5
	titleWeight       = 0.3
	participantWeight = 0.2
	memoryBonus       = 0.05
)

// NameScorer scores how well a transcript title refers to a person or
// meeting name. Implementations must be deterministic.
type NameScorer interface {
	Score(candidate, reference string) float64
}

// Match is an accepted calendar assignment.
type Match struct {
	Entry      calendar.Entry
	Confidence float64
}

// Matcher scores transcripts against calendar entries.
type Matcher struct {
	Threshold float64
	Scorer    NameScorer
	Memory    *Memory
}

// New builds a matcher with the default name scorer.
func New(threshold float64, memory *Memory) *Matcher {
	return &Matcher{Threshold: threshold, Scorer: DefaultScorer{}, Memory: memory}
}

// Best returns the highest-scoring entry at or above the threshold, or nil
// when no entry qualifies. Given equal scores the earlier entry wins, which
// keeps results stable across runs.
func (m *Matcher) Best(t *transcript.Transcript, entries []calendar.Entry) *Match {
	if len(entries) == 0 {
		return nil
	}

	scored := make([]Match, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, Match{Entry: e, Confidence: m.score(t, e)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return entryStart(scored[i].Entry).Before(entryStart(scored[j].Entry))
	})

	best := scored[0]
	if best.Confidence < m.Threshold {
		return nil
	}
	return &best
}

func entryStart(e calendar.Entry) time.Time {
	if e.Start != nil {
		return *e.Start
	}
	return e.Date
}

func (m *Matcher) score(t *transcript.Transcript, e calendar.Entry) float64 {
	score := timeWeight * timeScore(t, e)
	score += titleWeight * m.Scorer.Score(t.Title, e.Title)
	score += participantWeight * participantScore(t.Body, e.Participants)
	if m.Memory != nil && m.Memory.TopicsOverlap(e.Participants, t.Title) {
		score += memoryBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// timeScore rates temporal agreement between the transcript window and the
// entry. A timed overlap is conclusive; all-day and same-day agreement are
// weaker signals that need support from title or participants.
func timeScore(t *transcript.Transcript, e calendar.Entry) float64 {
	if t.HasWindow() {
		if e.Overlaps(*t.MeetingStart, *t.MeetingEnd) {
			if e.AllDay() {
				return 0.6
			}
			return 1.0
		}
		return 0
	}
	// No window: the entry was already selected by date, count partial credit.
	return 0.4
}

// participantScore is the fraction of scheduled participants whose names
// appear in the transcript body.
func participantScore(body string, participants []string) float64 {
	if len(participants) == 0 {
		return 0
	}
	lower := strings.ToLower(body)
	found := 0
	for _, p := range participants {
		if nameAppears(lower, p) {
			found++
		}
	}
	return float64(found) / float64(len(participants))
}

// nameAppears checks for the full name or, failing that, the first name.
func nameAppears(lowerBody, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if strings.Contains(lowerBody, name) {
		return true
	}
	if first, _, ok := strings.Cut(name, " "); ok && len(first) >= 3 {
		return strings.Contains(lowerBody, first)
	}
	return false
}

// DefaultScorer is the built-in deterministic title scorer: exact match
// scores 1.0, containment 0.8, otherwise the fraction of shared significant
// tokens.
type DefaultScorer struct{}

// Score implements NameScorer.
func (DefaultScorer) Score(candidate, reference string) float64 {
	a := normalizeTitle(candidate)
	b := normalizeTitle(reference)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	return tokenOverlap(a, b)
}

var stopWords = map[string]bool{
	"the": true, "and": true, "with": true, "for": true, "meeting": true,
	"call": true, "sync": true, "weekly": true, "daily": true,
}

func normalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func significantTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		if len(tok) >= 3 && !stopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func tokenOverlap(a, b string) float64 {
	ta := significantTokens(a)
	tb := significantTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}
	shared := 0
	for _, tok := range tb {
		if set[tok] {
			shared++
		}
	}
	denom := len(ta)
	if len(tb) < denom {
		denom = len(tb)
	}
	return float64(shared) / float64(denom)
}
