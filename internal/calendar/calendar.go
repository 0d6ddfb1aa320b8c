// Package calendar parses the org-mode agenda document that accompanies the
// data repository and answers which meetings were scheduled around a given
// time window.
package calendar

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"meetingnotesd/internal/fileutil"
	"meetingnotesd/internal/services"
)

// MaxDocumentSize bounds the accepted calendar document.
const MaxDocumentSize = 1 << 20

// Entry is a single scheduled meeting parsed from the agenda.
type Entry struct {
	Title string
	// Date is the calendar day at local midnight.
	Date time.Time
	// Start and End are nil for all-day entries.
	Start        *time.Time
	End          *time.Time
	Participants []string
	MeetingLink  string
}

// AllDay reports whether the entry has no time component.
func (e *Entry) AllDay() bool {
	return e.Start == nil || e.End == nil
}

// overlapTolerance absorbs clock skew between capture devices and the
// calendar when comparing windows.
const overlapTolerance = 5 * time.Minute

// Overlaps reports whether the entry's scheduled window overlaps the given
// one, with tolerance at both edges. All-day entries overlap any window on
// their date.
func (e *Entry) Overlaps(start, end time.Time) bool {
	if e.AllDay() {
		y, m, d := e.Date.Date()
		sy, sm, sd := start.In(e.Date.Location()).Date()
		ey, em, ed := end.In(e.Date.Location()).Date()
		return (y == sy && m == sm && d == sd) || (y == ey && m == em && d == ed)
	}
	return start.Before(e.End.Add(overlapTolerance)) && e.Start.Add(-overlapTolerance).Before(end)
}

var (
	headingPattern = regexp.MustCompile(`^\* (.+?)\s+<(\d{4}-\d{2}-\d{2}) \w{3}(?: (\d{2}:\d{2})-(\d{2}:\d{2}))?>`)
	emailPattern   = regexp.MustCompile(`\s*<[^>]*@[^>]*>`)
	linkPattern    = regexp.MustCompile(`https?://\S+`)
)

// Parse extracts entries from an org-mode agenda document. Lines that do not
// belong to a recognized entry are ignored.
func Parse(content string) []Entry {
	var entries []Entry
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		m := headingPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", m[2], time.Local)
		if err != nil {
			continue
		}
		entry := Entry{Title: strings.TrimSpace(m[1]), Date: date}
		if m[3] != "" && m[4] != "" {
			if start, end, ok := timesOn(date, m[3], m[4]); ok {
				entry.Start = &start
				entry.End = &end
			}
		}

		// Body lines until the next heading carry participants and links.
		for j := i + 1; j < len(lines) && !strings.HasPrefix(lines[j], "* "); j++ {
			line := lines[j]
			if idx := strings.Index(strings.ToUpper(line), ":PARTICIPANTS:"); idx >= 0 {
				entry.Participants = parseParticipants(line[idx+len(":PARTICIPANTS:"):])
				continue
			}
			if entry.MeetingLink == "" {
				if link := linkPattern.FindString(line); link != "" {
					entry.MeetingLink = strings.TrimRight(link, ">].,)")
				}
			}
		}

		entries = append(entries, entry)
	}
	return entries
}

func timesOn(date time.Time, startHM, endHM string) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation("2006-01-02 15:04", date.Format("2006-01-02")+" "+startHM, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", date.Format("2006-01-02")+" "+endHM, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	// Meetings crossing midnight end on the next day.
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, true
}

func parseParticipants(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(emailPattern.ReplaceAllString(part, ""))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// EntriesOn filters entries to those falling on the given calendar day.
func EntriesOn(entries []Entry, day time.Time) []Entry {
	y, m, d := day.Date()
	var out []Entry
	for _, e := range entries {
		ey, em, ed := e.Date.Date()
		if ey == y && em == m && ed == d {
			out = append(out, e)
		}
	}
	return out
}

// Load reads and parses the agenda at path. A missing file yields no entries.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrWrite, "calendar", "load", "read calendar document", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, services.Wrap(services.ErrInput, "calendar", "load",
			fmt.Sprintf("calendar document exceeds %d bytes", MaxDocumentSize), nil)
	}
	return Parse(string(data)), nil
}

// Store atomically replaces the agenda at path after size validation.
func Store(path string, content []byte) error {
	if len(content) > MaxDocumentSize {
		return services.Wrap(services.ErrInput, "calendar", "store",
			fmt.Sprintf("calendar document exceeds %d bytes", MaxDocumentSize), nil)
	}
	if err := fileutil.WriteFileAtomic(path, content, 0o644); err != nil {
		return services.Wrap(services.ErrWrite, "calendar", "store", "replace calendar document", err)
	}
	return nil
}
