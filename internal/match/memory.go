package match

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meetingnotesd/internal/transcript"
)

// Memory remembers which topics each person has recently appeared around,
// built from the newest notes in the data repository. It only ever nudges a
// score; it never selects a match on its own.
type Memory struct {
	topicsByPerson map[string]map[string]bool
}

// BuildMemory scans the newest limit notes under notesDir. Each note
// contributes its title tokens as topics for every person named in its body.
// Missing directories yield an empty memory.
func BuildMemory(notesDir string, limit int) (*Memory, error) {
	m := &Memory{topicsByPerson: make(map[string]map[string]bool)}
	if limit <= 0 {
		return m, nil
	}

	entries, err := os.ReadDir(notesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	// Filenames start with YYYYMMDD, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > limit {
		names = names[:limit]
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(notesDir, name))
		if err != nil {
			continue
		}
		doc := transcript.ParseDocument(string(data))
		title := doc.Get(transcript.FieldTitle)
		if title == "" {
			title = strings.TrimSuffix(name, ".md")
		}
		m.record(title, doc.Body)
	}
	return m, nil
}

func (m *Memory) record(title, body string) {
	topics := significantTokens(normalizeTitle(title))
	if len(topics) == 0 {
		return
	}
	for _, person := range peopleIn(body) {
		set := m.topicsByPerson[person]
		if set == nil {
			set = make(map[string]bool)
			m.topicsByPerson[person] = set
		}
		for _, topic := range topics {
			set[topic] = true
		}
	}
}

// peopleIn extracts capitalized word pairs that look like personal names.
// Crude, but it only has to feed a tiebreak.
func peopleIn(body string) []string {
	words := strings.Fields(body)
	seen := make(map[string]bool)
	var out []string
	for i := 0; i+1 < len(words); i++ {
		if !looksLikeNameWord(words[i]) || !looksLikeNameWord(words[i+1]) {
			continue
		}
		name := strings.ToLower(strings.Trim(words[i], ".,:;") + " " + strings.Trim(words[i+1], ".,:;"))
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func looksLikeNameWord(w string) bool {
	w = strings.Trim(w, ".,:;")
	if len(w) < 2 {
		return false
	}
	first := w[0]
	if first < 'A' || first > 'Z' {
		return false
	}
	for i := 1; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return true
}

// TopicsOverlap reports whether any of the given participants has recently
// appeared around topics shared with the transcript title.
func (m *Memory) TopicsOverlap(participants []string, title string) bool {
	if m == nil || len(m.topicsByPerson) == 0 {
		return false
	}
	tokens := significantTokens(normalizeTitle(title))
	if len(tokens) == 0 {
		return false
	}
	for _, p := range participants {
		set := m.topicsByPerson[strings.ToLower(strings.TrimSpace(p))]
		if set == nil {
			continue
		}
		for _, tok := range tokens {
			if set[tok] {
				return true
			}
		}
	}
	return false
}

// Enrich writes the accepted match into the transcript document fields.
func Enrich(doc *transcript.Document, m *Match) {
	doc.Set(transcript.FieldCalendarMatch, m.Entry.Title)
	if !m.Entry.AllDay() {
		doc.Set(transcript.FieldCalendarTime,
			m.Entry.Start.Format("2006-01-02 15:04")+"-"+m.Entry.End.Format("15:04"))
	} else {
		doc.Set(transcript.FieldCalendarTime, m.Entry.Date.Format("2006-01-02"))
	}
	if m.Entry.MeetingLink != "" {
		doc.Set(transcript.FieldMeetingLink, m.Entry.MeetingLink)
	}
	if len(m.Entry.Participants) > 0 {
		doc.Set(transcript.FieldParticipants, strings.Join(m.Entry.Participants, ", "))
	}
}
