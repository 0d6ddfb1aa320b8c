package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Front matter field keys.
const (
	FieldTitle           = "title"
	FieldReceivedAt      = "received_at"
	FieldMeetingStart    = "meeting_start"
	FieldMeetingEnd      = "meeting_end"
	FieldDuration        = "duration_seconds"
	FieldRecordingSource = "recording_source"
	FieldTiming          = "timing"
	FieldCalendarMatch   = "calendar_match"
	FieldCalendarTime    = "calendar_time"
	FieldMeetingLink     = "meeting_link"
	FieldParticipants    = "participants"
)

// TimingInterpolated marks transcripts whose meeting window was derived
// rather than reported by the capture device.
const TimingInterpolated = "interpolated"

// Transcript is an ingested meeting transcript.
type Transcript struct {
	Title           string
	Body            string
	ReceivedAt      time.Time
	MeetingStart    *time.Time
	MeetingEnd      *time.Time
	DurationSeconds int
	RecordingSource string
	// Interpolated is true when the meeting window was derived from the
	// receipt time or by proportional split rather than reported directly.
	Interpolated bool
}

// Duration returns the meeting length. Explicit duration wins; otherwise it
// is derived from the meeting window. Zero means unknown.
func (t *Transcript) Duration() time.Duration {
	if t.DurationSeconds > 0 {
		return time.Duration(t.DurationSeconds) * time.Second
	}
	if t.MeetingStart != nil && t.MeetingEnd != nil {
		if d := t.MeetingEnd.Sub(*t.MeetingStart); d > 0 {
			return d
		}
	}
	return 0
}

// HasWindow reports whether both ends of the meeting window are known.
func (t *Transcript) HasWindow() bool {
	return t.MeetingStart != nil && t.MeetingEnd != nil
}

// DeriveWindow fills in a missing meeting window from the explicit duration.
// A known start extends forward by the duration; otherwise the recording is
// assumed to end at the receipt time and the window counts back from there.
// Windows derived from the receipt time are marked interpolated.
func (t *Transcript) DeriveWindow() {
	if t.HasWindow() || t.DurationSeconds <= 0 {
		return
	}
	if t.MeetingStart != nil {
		end := t.MeetingStart.Add(time.Duration(t.DurationSeconds) * time.Second)
		t.MeetingEnd = &end
		return
	}
	if t.ReceivedAt.IsZero() {
		return
	}
	end := t.ReceivedAt
	start := end.Add(-time.Duration(t.DurationSeconds) * time.Second)
	t.MeetingStart = &start
	t.MeetingEnd = &end
	t.Interpolated = true
}

// Fingerprint returns the content identity used for duplicate detection:
// the hex SHA-256 of the title and body.
func (t *Transcript) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(t.Title))
	h.Write([]byte{'\n'})
	h.Write([]byte(t.Body))
	return hex.EncodeToString(h.Sum(nil))
}

// Date returns the calendar date the transcript belongs to, preferring the
// meeting start over the receipt time.
func (t *Transcript) Date() time.Time {
	if t.MeetingStart != nil {
		return *t.MeetingStart
	}
	return t.ReceivedAt
}

// Render serializes the transcript to its on-disk document form. A body that
// already carries a front matter block is written through unchanged.
func (t *Transcript) Render() string {
	if HasFrontMatter(t.Body) {
		return t.Body
	}
	doc := Document{Body: t.Body}
	doc.Set(FieldTitle, t.Title)
	if !t.ReceivedAt.IsZero() {
		doc.Set(FieldReceivedAt, t.ReceivedAt.Format(time.RFC3339))
	}
	if t.MeetingStart != nil {
		doc.Set(FieldMeetingStart, t.MeetingStart.Format(time.RFC3339))
	}
	if t.MeetingEnd != nil {
		doc.Set(FieldMeetingEnd, t.MeetingEnd.Format(time.RFC3339))
	}
	if t.DurationSeconds > 0 {
		doc.Set(FieldDuration, strconv.Itoa(t.DurationSeconds))
	}
	if t.RecordingSource != "" {
		doc.Set(FieldRecordingSource, t.RecordingSource)
	}
	if t.Interpolated {
		doc.Set(FieldTiming, TimingInterpolated)
	}
	return doc.Render()
}

// FromDocument rebuilds a Transcript from a parsed document. Unparseable
// timestamps are dropped rather than failing the load.
func FromDocument(doc Document) Transcript {
	t := Transcript{
		Title:           doc.Get(FieldTitle),
		Body:            doc.Body,
		RecordingSource: doc.Get(FieldRecordingSource),
		Interpolated:    doc.Get(FieldTiming) == TimingInterpolated,
	}
	if v := doc.Get(FieldReceivedAt); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			t.ReceivedAt = ts
		}
	}
	if v := doc.Get(FieldMeetingStart); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			t.MeetingStart = &ts
		}
	}
	if v := doc.Get(FieldMeetingEnd); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			t.MeetingEnd = &ts
		}
	}
	if v := doc.Get(FieldDuration); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			t.DurationSeconds = n
		}
	}
	return t
}

var filenameDatePattern = regexp.MustCompile(`^(\d{8})-`)

// FileDate determines the calendar date for a transcript file: meeting start
// from the front matter, then the YYYYMMDD filename prefix, then the file
// modification time.
func FileDate(path string, doc Document) time.Time {
	if v := doc.Get(FieldMeetingStart); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	if m := filenameDatePattern.FindStringSubmatch(filepath.Base(path)); m != nil {
		if ts, err := time.ParseInLocation("20060102", m[1], time.Local); err == nil {
			return ts
		}
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// Filename builds the canonical transcript filename for a date and title.
func Filename(date time.Time, title string) string {
	return fmt.Sprintf("%s-%s.md", date.Format("20060102"), Slugify(title))
}

// UniqueFilename returns Filename for date and title, appending an integer
// suffix when the name is already taken in dir.
func UniqueFilename(dir string, date time.Time, title string) string {
	return UniqueFilenameAll(date, title, dir)
}

// UniqueFilenameAll returns Filename for date and title, appending an
// integer suffix until the name is free in every listed directory. Used when
// a transcript and its note must land under the same name.
func UniqueFilenameAll(date time.Time, title string, dirs ...string) string {
	base := fmt.Sprintf("%s-%s", date.Format("20060102"), Slugify(title))
	name := base + ".md"
	for n := 2; takenInAny(name, dirs); n++ {
		name = fmt.Sprintf("%s-%d.md", base, n)
	}
	return name
}

func takenInAny(name string, dirs []string) bool {
	for _, dir := range dirs {
		if fileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PartTitle names one part of a split multi-meeting transcript.
func PartTitle(title string, part int) string {
	return fmt.Sprintf("%s-part%d", title, part)
}

// BodyChars returns the number of characters in the transcript body after
// trimming surrounding whitespace, the measure used by the junk pre-filter
// and split gates.
func BodyChars(body string) int {
	return len([]rune(strings.TrimSpace(body)))
}
