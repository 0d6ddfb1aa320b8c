package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/fileutil"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/transcript"
)

// MaxTranscriptSize bounds the accepted transcript body.
const MaxTranscriptSize = 256 << 10

// maxRequestSize leaves room for the JSON envelope around the transcript.
const maxRequestSize = MaxTranscriptSize + 64<<10

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", d.handleWebhook)
	mux.HandleFunc("POST /calendar", d.handleCalendar)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("GET /{$}", d.handleRoot)
	return mux
}

type webhookPayload struct {
	Title           string `json:"title"`
	Transcript      string `json:"transcript"`
	MeetingStart    string `json:"meeting_start"`
	MeetingEnd      string `json:"meeting_end"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationSeconds int    `json:"duration"`
	RecordingSource string `json:"recording_source"`
}

func (p *webhookPayload) window() (start, end string) {
	start = p.MeetingStart
	if start == "" {
		start = p.StartTime
	}
	end = p.MeetingEnd
	if end == "" {
		end = p.EndTime
	}
	return start, end
}

type webhookResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{
				Status: "error", Message: fmt.Sprintf("request exceeds %d bytes", maxRequestSize)})
			return
		}
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "invalid JSON payload"})
		return
	}

	payload.Title = strings.TrimSpace(payload.Title)
	if payload.Title == "" || strings.TrimSpace(payload.Transcript) == "" {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "title and transcript are required"})
		return
	}
	if len(payload.Transcript) > MaxTranscriptSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{
			Status: "error", Message: fmt.Sprintf("transcript exceeds %d bytes", MaxTranscriptSize)})
		return
	}

	t := transcript.Transcript{
		Title:           payload.Title,
		Body:            payload.Transcript,
		ReceivedAt:      time.Now(),
		DurationSeconds: payload.DurationSeconds,
		RecordingSource: strings.TrimSpace(payload.RecordingSource),
	}
	startRaw, endRaw := payload.window()
	for _, field := range []struct {
		value string
		dest  **time.Time
		name  string
	}{
		{startRaw, &t.MeetingStart, "meeting_start"},
		{endRaw, &t.MeetingEnd, "meeting_end"},
	} {
		if field.value == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, field.value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, webhookResponse{
				Status: "error", Message: fmt.Sprintf("%s must be RFC 3339", field.name)})
			return
		}
		*field.dest = &ts
	}
	t.DeriveWindow()

	fingerprint := t.Fingerprint()
	if d.dedup.Add(fingerprint) {
		d.logger.Info("duplicate transcript rejected",
			logging.String(logging.FieldTitle, t.Title),
			logging.String(logging.FieldFingerprint, fingerprint[:12]))
		if job, err := d.store.Create(r.Context(), t.Title, fingerprint, d.strategy.Name()); err == nil {
			_ = d.store.Finish(r.Context(), job.ID, jobs.StatusDeduplicated, "")
		}
		writeJSON(w, http.StatusOK, webhookResponse{Status: "duplicate", Message: "transcript already received"})
		return
	}

	if d.cfg.Sync.Enabled && d.cfg.Sync.BeforeWebhook {
		d.syncer.SyncNow(r.Context())
	}

	// Durably store and commit the transcript before touching anything that
	// can fail slowly. Once the write lands the capture device may forget
	// the recording.
	filename, err := d.storeTranscript(r, &t)
	if err != nil {
		// Nothing durable was written; the sender's retry must not be
		// answered as a duplicate.
		d.dedup.Remove(fingerprint)
		d.logger.Error("store transcript failed",
			logging.String(logging.FieldTitle, t.Title),
			logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error", Message: "failed to store transcript"})
		return
	}
	d.notifier.TranscriptStored(r.Context(), t.Title, filename)

	job, err := d.store.Create(r.Context(), t.Title, fingerprint, d.strategy.Name())
	if err != nil {
		d.logger.Error("record job failed", logging.Error(err))
		writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Filename: filename, Message: "transcript stored"})
		return
	}
	_ = d.store.SetFilename(r.Context(), job.ID, filename)

	req := dispatchRequest(job.ID, t.Title, filename, d.cfg.InboxDir())
	if err := d.strategy.Dispatch(r.Context(), req); err != nil {
		d.logger.Error("dispatch failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		writeJSON(w, http.StatusOK, webhookResponse{
			Status:   "success",
			Filename: filename,
			Message:  "transcript stored but processing failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: "success", Filename: filename, Message: "transcript stored"})
}

// storeTranscript writes the transcript to the inbox and commits it.
func (d *Daemon) storeTranscript(r *http.Request, t *transcript.Transcript) (string, error) {
	inbox := d.cfg.InboxDir()
	if err := ensureDir(inbox); err != nil {
		return "", err
	}
	filename := transcript.UniqueFilename(inbox, t.Date(), t.Title)
	path := filepath.Join(inbox, filename)
	if err := fileutil.WriteFileAtomic(path, []byte(t.Render()), 0o644); err != nil {
		return "", err
	}
	if d.cfg.Git.AutoCommit {
		rel := filepath.Join("inbox", filename)
		if err := d.repo.CommitPaths(r.Context(), d.repo.CommitMessage(filename), rel); err != nil {
			return "", err
		}
	}
	d.logger.Info("transcript stored",
		logging.String(logging.FieldTitle, t.Title),
		logging.String(logging.FieldFilename, filename))
	return filename, nil
}

func (d *Daemon) handleCalendar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, calendar.MaxDocumentSize+64<<10)

	var content []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Calendar string `json:"calendar"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, statusForBodyError(err), webhookResponse{Status: "error", Message: "invalid JSON payload"})
			return
		}
		content = []byte(payload.Calendar)
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, statusForBodyError(err), webhookResponse{Status: "error", Message: "failed to read body"})
			return
		}
		content = data
	}

	if len(content) > calendar.MaxDocumentSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{
			Status: "error", Message: fmt.Sprintf("calendar exceeds %d bytes", calendar.MaxDocumentSize)})
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "calendar content is empty"})
		return
	}

	if err := calendar.Store(d.cfg.CalendarPath(), content); err != nil {
		d.logger.Error("store calendar failed", logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error", Message: "failed to store calendar"})
		return
	}
	if d.cfg.Git.AutoCommit {
		if err := d.repo.CommitPaths(r.Context(), "Update calendar", "calendar.org"); err != nil {
			d.logger.Warn("commit calendar failed", logging.Error(err))
		}
	}

	entries := calendar.Parse(string(content))
	d.logger.Info("calendar updated", logging.Int("entries", len(entries)))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "calendar updated",
		"entries": len(entries),
	})
}

func statusForBodyError(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (d *Daemon) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "meetingnotesd",
		"status":  "ok",
	})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := d.store.CountByStatus(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	lastSync, syncErr := d.syncer.Status()

	status := map[string]any{
		"status":         "ok",
		"mode":           d.strategy.Name(),
		"uptime_seconds": int(time.Since(d.startedAt).Seconds()),
		"jobs":           counts,
		"dirty":          d.syncer.Dirty(),
	}
	if !lastSync.IsZero() {
		status["last_sync"] = lastSync.UTC().Format(time.RFC3339)
	}
	if syncErr != nil {
		status["sync_error"] = syncErr.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
