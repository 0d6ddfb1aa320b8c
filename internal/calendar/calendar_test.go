package calendar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleAgenda = `#+TITLE: Agenda

* Weekly Sync <2026-03-02 Mon 10:00-10:30>
:PROPERTIES:
:PARTICIPANTS: Alice Cooper <alice@example.com>, Bob Marley <bob@example.com>
:END:
https://meet.example.com/weekly-sync

* Design Review <2026-03-02 Mon 14:00-15:00>
:PARTICIPANTS: Carol Danvers

* Company Offsite <2026-03-03 Tue>
All hands, no fixed time.
`

func TestParse(t *testing.T) {
	entries := Parse(sampleAgenda)
	if len(entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(entries))
	}

	sync := entries[0]
	if sync.Title != "Weekly Sync" {
		t.Errorf("title = %q", sync.Title)
	}
	if sync.AllDay() {
		t.Error("timed entry reported all-day")
	}
	if got := sync.Start.Format("15:04"); got != "10:00" {
		t.Errorf("start = %s", got)
	}
	if got := sync.End.Format("15:04"); got != "10:30" {
		t.Errorf("end = %s", got)
	}
	if len(sync.Participants) != 2 || sync.Participants[0] != "Alice Cooper" || sync.Participants[1] != "Bob Marley" {
		t.Errorf("participants = %v, emails should be stripped", sync.Participants)
	}
	if sync.MeetingLink != "https://meet.example.com/weekly-sync" {
		t.Errorf("link = %q", sync.MeetingLink)
	}

	offsite := entries[2]
	if !offsite.AllDay() {
		t.Error("untimed entry should be all-day")
	}
	if offsite.Date.Format("2006-01-02") != "2026-03-03" {
		t.Errorf("date = %v", offsite.Date)
	}
}

func TestParseIgnoresMalformedHeadings(t *testing.T) {
	entries := Parse("* No timestamp here\n* Bad date <2026-13-99 Xxx>\nrandom text\n")
	if len(entries) != 0 {
		t.Errorf("parsed %d entries from garbage, want 0", len(entries))
	}
}

func TestOverlaps(t *testing.T) {
	entries := Parse("* Sync <2026-03-02 Mon 10:00-10:30>\n")
	entry := entries[0]

	at := func(hm string) time.Time {
		ts, err := time.ParseInLocation("2006-01-02 15:04", "2026-03-02 "+hm, time.Local)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"exact", "10:00", "10:30", true},
		{"inside", "10:05", "10:20", true},
		{"just before within tolerance", "09:40", "09:58", true},
		{"just after within tolerance", "10:33", "11:00", true},
		{"well before", "08:00", "09:00", false},
		{"well after", "11:00", "12:00", false},
	}
	for _, tt := range tests {
		if got := entry.Overlaps(at(tt.start), at(tt.end)); got != tt.want {
			t.Errorf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAllDayOverlapsAnyWindowOnDate(t *testing.T) {
	entries := Parse("* Offsite <2026-03-03 Tue>\n")
	entry := entries[0]

	start, _ := time.ParseInLocation("2006-01-02 15:04", "2026-03-03 07:00", time.Local)
	if !entry.Overlaps(start, start.Add(time.Hour)) {
		t.Error("all-day entry should overlap any window on its date")
	}
	other := start.AddDate(0, 0, 2)
	if entry.Overlaps(other, other.Add(time.Hour)) {
		t.Error("all-day entry should not overlap another day")
	}
}

func TestEntriesOn(t *testing.T) {
	entries := Parse(sampleAgenda)
	day, _ := time.ParseInLocation("2006-01-02", "2026-03-02", time.Local)
	got := EntriesOn(entries, day)
	if len(got) != 2 {
		t.Fatalf("EntriesOn = %d entries, want 2", len(got))
	}
}

func TestStoreAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.org")
	if err := Store(path, []byte(sampleAgenda)); err != nil {
		t.Fatal(err)
	}
	entries, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("loaded %d entries, want 3", len(entries))
	}
}

func TestStoreRejectsOversizedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.org")
	big := []byte(strings.Repeat("x", MaxDocumentSize+1))
	if err := Store(path, big); err == nil {
		t.Fatal("expected size error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("oversized document must not be written")
	}
}

func TestLoadMissingFile(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "absent.org"))
	if err != nil {
		t.Fatalf("missing calendar should not error: %v", err)
	}
	if entries != nil {
		t.Errorf("entries = %v, want nil", entries)
	}
}
