// Package process runs the standalone pipeline over inbox transcripts:
// junk filtering, multi-meeting splitting, calendar matching, and note
// generation. Every outcome is committed to the data repository so the git
// history doubles as an audit log.
package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/config"
	"meetingnotesd/internal/fileutil"
	"meetingnotesd/internal/gitrepo"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/match"
	"meetingnotesd/internal/notifications"
	"meetingnotesd/internal/prefilter"
	"meetingnotesd/internal/services"
	"meetingnotesd/internal/splitter"
	"meetingnotesd/internal/summarize"
	"meetingnotesd/internal/transcript"
)

// Outcome describes what the pipeline did with one transcript file.
type Outcome struct {
	Filename  string
	NoteFile  string
	Discarded bool
	Reason    string
	// Parts is the number of split parts processed, 0 when no split occurred.
	Parts int
}

// Pipeline processes inbox transcripts end to end. A path is processed by
// at most one caller at a time; concurrent entry points (webhook dispatch,
// inbox watcher, sweeps) racing on the same file yield to the first owner.
type Pipeline struct {
	cfg      *config.Config
	repo     *gitrepo.Repo
	detector splitter.Detector
	engine   summarize.Engine
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// New builds a pipeline. detector may be nil to disable split detection;
// engine may be nil to archive transcripts without generating notes.
func New(cfg *config.Config, repo *gitrepo.Repo, detector splitter.Detector, engine summarize.Engine, notifier notifications.Service, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		repo:     repo,
		detector: detector,
		engine:   engine,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "process"),
		inflight: make(map[string]bool),
	}
}

// claim marks path as being processed; it reports false when another caller
// already owns it.
func (p *Pipeline) claim(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[path] {
		return false
	}
	p.inflight[path] = true
	return true
}

func (p *Pipeline) release(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, path)
}

// ProcessInbox processes every transcript currently in the inbox, oldest
// first. Individual file failures are logged and do not stop the sweep; the
// first error is returned after all files were attempted.
func (p *Pipeline) ProcessInbox(ctx context.Context) ([]Outcome, error) {
	names, err := p.inboxFiles()
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	var firstErr error
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		outcome, err := p.ProcessFile(ctx, filepath.Join(p.cfg.InboxDir(), name))
		if err != nil {
			p.logger.Error("processing failed",
				logging.String(logging.FieldFilename, name),
				logging.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, firstErr
}

func (p *Pipeline) inboxFiles() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.InboxDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrWrite, "process", "scan", "read inbox", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ProcessFile runs the pipeline for one inbox file. When the file splits
// into multiple meetings the parts are written back to the inbox and each is
// processed in turn.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (Outcome, error) {
	path = filepath.Clean(path)
	name := filepath.Base(path)
	if !p.claim(path) {
		p.logger.Debug("transcript already in flight, skipping",
			logging.String(logging.FieldFilename, name))
		return Outcome{}, nil
	}
	defer p.release(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrWrite, "process", "read", "read transcript", err)
	}

	doc := transcript.ParseDocument(string(data))
	t := transcript.FromDocument(doc)
	if t.Title == "" {
		t.Title = strings.TrimSuffix(name, ".md")
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = transcript.FileDate(path, doc)
	}
	t.DeriveWindow()

	// Junk filter.
	result := prefilter.Check(&t, prefilter.Thresholds{
		MinBodyChars: p.cfg.Processing.MinBodyChars,
		MinDuration:  time.Duration(p.cfg.Processing.MinDurationSeconds) * time.Second,
	})
	if result.Junk {
		return p.discard(ctx, path, &t, result.Reason)
	}

	entries, err := calendar.Load(p.cfg.CalendarPath())
	if err != nil {
		p.logger.Warn("calendar unavailable", logging.Error(err))
	}
	dayEntries := calendar.EntriesOn(entries, t.Date())

	// Multi-meeting split.
	if p.detector != nil && splitter.ShouldConsider(&t, p.splitGates(), dayEntries) {
		handled, outcome, err := p.trySplit(ctx, path, &t)
		if err != nil || handled {
			return outcome, err
		}
	}

	return p.finishOne(ctx, path, doc, &t, dayEntries)
}

func (p *Pipeline) splitGates() splitter.Gates {
	return splitter.Gates{
		MinBodyChars: p.cfg.Processing.SplitMinBodyChars,
		MinDuration:  time.Duration(p.cfg.Processing.SplitMinDurationSeconds) * time.Second,
	}
}

// trySplit runs boundary detection. Detection failures degrade to processing
// the transcript whole rather than failing the job.
func (p *Pipeline) trySplit(ctx context.Context, path string, t *transcript.Transcript) (bool, Outcome, error) {
	det, err := p.detector.DetectBoundaries(ctx, t)
	if err != nil {
		p.logger.Warn("boundary detection failed, processing whole",
			logging.String(logging.FieldTitle, t.Title),
			logging.Error(err))
		return false, Outcome{}, nil
	}

	parts := splitter.Split(t, det)
	if len(parts) < 2 {
		return false, Outcome{}, nil
	}

	partPaths, err := p.writeParts(ctx, path, t, parts)
	if err != nil {
		return true, Outcome{}, err
	}
	p.notifier.TranscriptSplit(ctx, t.Title, len(parts))

	outcome := Outcome{Filename: filepath.Base(path), Parts: len(parts)}
	for _, partPath := range partPaths {
		if _, err := p.ProcessFile(ctx, partPath); err != nil {
			return true, outcome, err
		}
	}
	return true, outcome, nil
}

// writeParts writes the split parts to the inbox, removes the original, and
// commits the exchange as one change.
func (p *Pipeline) writeParts(ctx context.Context, path string, t *transcript.Transcript, parts []transcript.Transcript) ([]string, error) {
	inbox := p.cfg.InboxDir()
	commitPaths := []string{repoRel(p.repo.Dir(), path)}
	var partPaths []string

	for i := range parts {
		name := transcript.UniqueFilename(inbox, parts[i].Date(), parts[i].Title)
		partPath := filepath.Join(inbox, name)
		if err := fileutil.WriteFileAtomic(partPath, []byte(parts[i].Render()), 0o644); err != nil {
			return nil, services.Wrap(services.ErrWrite, "split", "write", "write split part", err)
		}
		partPaths = append(partPaths, partPath)
		commitPaths = append(commitPaths, repoRel(p.repo.Dir(), partPath))
	}

	if err := os.Remove(path); err != nil {
		return nil, services.Wrap(services.ErrWrite, "split", "remove", "remove original transcript", err)
	}

	if p.cfg.Git.AutoCommit {
		msg := fmt.Sprintf("Split transcript into %d meetings: %s", len(parts), filepath.Base(path))
		if err := p.repo.CommitPaths(ctx, msg, commitPaths...); err != nil {
			return nil, err
		}
	}

	p.logger.Info("transcript split",
		logging.String(logging.FieldTitle, t.Title),
		logging.Int("parts", len(parts)))
	return partPaths, nil
}

// discard removes a junk transcript and records the removal.
func (p *Pipeline) discard(ctx context.Context, path string, t *transcript.Transcript, reason string) (Outcome, error) {
	if err := os.Remove(path); err != nil {
		return Outcome{}, services.Wrap(services.ErrWrite, "process", "discard", "remove junk transcript", err)
	}
	if p.cfg.Git.AutoCommit {
		msg := fmt.Sprintf("Remove junk transcript: %s", filepath.Base(path))
		if err := p.repo.CommitPaths(ctx, msg, repoRel(p.repo.Dir(), path)); err != nil {
			return Outcome{}, err
		}
	}
	p.logger.Info("transcript discarded",
		logging.String(logging.FieldTitle, t.Title),
		logging.String("reason", reason))
	p.notifier.TranscriptDiscarded(ctx, t.Title, reason)
	return Outcome{Filename: filepath.Base(path), Discarded: true, Reason: reason}, nil
}

// finishOne matches, summarizes, archives, and commits a single-meeting
// transcript. Summarization runs before the inbox file is touched so a
// failed engine call leaves the transcript in place for a later sweep.
func (p *Pipeline) finishOne(ctx context.Context, path string, doc transcript.Document, t *transcript.Transcript, dayEntries []calendar.Entry) (Outcome, error) {
	memory, err := match.BuildMemory(p.cfg.NotesDir(), p.cfg.Processing.RecentNotesLimit)
	if err != nil {
		p.logger.Warn("recent-notes memory unavailable", logging.Error(err))
	}
	matcher := match.New(p.cfg.Processing.MatchConfidenceThreshold, memory)

	var matched *match.Match
	if m := matcher.Best(t, dayEntries); m != nil {
		matched = m
		if len(doc.Fields) == 0 {
			doc = transcript.ParseDocument(t.Render())
		}
		match.Enrich(&doc, m)
		p.logger.Info("calendar match accepted",
			logging.String(logging.FieldTitle, t.Title),
			logging.String("entry", m.Entry.Title),
			logging.Float64("confidence", m.Confidence))
	}

	var notes string
	if p.engine != nil {
		var entry *calendar.Entry
		if matched != nil {
			entry = &matched.Entry
		}
		notes, err = p.engine.Summarize(ctx, t, entry)
		if err != nil {
			hint := services.ErrorHint(err)
			p.logger.Warn("summarization failed",
				logging.String(logging.FieldTitle, t.Title),
				logging.String(logging.FieldErrorHint, hint),
				logging.Error(err))
			p.notifier.ProcessingFailed(ctx, t.Title, err.Error(), hint)
			return Outcome{}, err
		}
	}

	// The final name is content-derived: the summary's own heading wins,
	// then the matched calendar entry, then the ingestion title. Uniquified
	// against both destinations so transcript and note stay paired.
	base := t.Title
	if matched != nil {
		base = matched.Entry.Title
	}
	if heading := summarize.TitleFromNotes(notes); heading != "" {
		base = heading
	}
	name := transcript.UniqueFilenameAll(t.Date(), base, p.cfg.TranscriptsDir(), p.cfg.NotesDir())

	// Archive the (possibly enriched) transcript.
	archived := filepath.Join(p.cfg.TranscriptsDir(), name)
	if err := os.MkdirAll(p.cfg.TranscriptsDir(), 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrWrite, "process", "archive", "create transcripts directory", err)
	}
	content := doc.Render()
	if len(doc.Fields) == 0 {
		content = t.Render()
	}
	if err := fileutil.WriteFileAtomic(archived, []byte(content), 0o644); err != nil {
		return Outcome{}, services.Wrap(services.ErrWrite, "process", "archive", "write archived transcript", err)
	}

	outcome := Outcome{Filename: name}
	commitPaths := []string{
		repoRel(p.repo.Dir(), path),
		repoRel(p.repo.Dir(), archived),
	}

	if p.engine != nil {
		notePath := filepath.Join(p.cfg.NotesDir(), name)
		if err := os.MkdirAll(p.cfg.NotesDir(), 0o755); err != nil {
			return Outcome{}, services.Wrap(services.ErrWrite, "process", "notes", "create notes directory", err)
		}
		noteDoc := transcript.Document{Fields: doc.Fields, Body: notes}
		if noteDoc.Get(transcript.FieldTitle) == "" {
			noteDoc.Set(transcript.FieldTitle, t.Title)
		}
		if err := fileutil.WriteFileAtomic(notePath, []byte(noteDoc.Render()), 0o644); err != nil {
			return Outcome{}, services.Wrap(services.ErrWrite, "process", "notes", "write notes", err)
		}
		outcome.NoteFile = name
		commitPaths = append(commitPaths, repoRel(p.repo.Dir(), notePath))
	}

	if err := os.Remove(path); err != nil {
		return Outcome{}, services.Wrap(services.ErrWrite, "process", "archive", "remove inbox transcript", err)
	}

	if p.cfg.Git.AutoCommit {
		if err := p.repo.CommitPaths(ctx, fmt.Sprintf("Process transcript: %s", name), commitPaths...); err != nil {
			return Outcome{}, err
		}
		if p.cfg.Git.AutoPush {
			if err := p.repo.Push(ctx); err != nil {
				return Outcome{}, err
			}
		}
	}

	p.notifier.ProcessingSucceeded(ctx, t.Title, name)
	return outcome, nil
}

func repoRel(repoDir, path string) string {
	rel, err := filepath.Rel(repoDir, path)
	if err != nil {
		return path
	}
	return rel
}
