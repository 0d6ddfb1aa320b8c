// Package summarize turns an archived transcript into meeting notes. The
// default engine prompts a chat model with the transcript and whatever
// calendar context the matcher found; the prompt itself lives in the data
// repository so note style can evolve without redeploying the daemon.
package summarize

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"log/slog"

	"meetingnotesd/internal/calendar"
	"meetingnotesd/internal/fileutil"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/services/llm"
	"meetingnotesd/internal/transcript"
)

// Engine produces meeting notes from a transcript.
type Engine interface {
	Summarize(ctx context.Context, t *transcript.Transcript, entry *calendar.Entry) (string, error)
}

const defaultPrompt = `You are a careful note taker. Summarize the meeting transcript into concise markdown notes. Start with a single "# " heading that names the meeting in a few words, then these sections: a one-paragraph summary, key decisions, action items (with owners when named), and open questions. Use only information from the transcript. Do not invent attendees or commitments.`

// LLMEngine implements Engine with a chat completion model.
type LLMEngine struct {
	client     *llm.Client
	promptFile string
	fallback   string
	logger     *slog.Logger
}

// NewLLMEngine builds an engine. promptFile may be empty or point at a file
// that does not exist yet; the built-in prompt covers both.
func NewLLMEngine(client *llm.Client, promptFile string, logger *slog.Logger) *LLMEngine {
	return &LLMEngine{
		client:     client,
		promptFile: promptFile,
		fallback:   defaultPrompt,
		logger:     logging.NewComponentLogger(logger, "summarize"),
	}
}

// Summarize generates notes for the transcript.
func (e *LLMEngine) Summarize(ctx context.Context, t *transcript.Transcript, entry *calendar.Entry) (string, error) {
	system := e.loadPrompt()

	var b strings.Builder
	fmt.Fprintf(&b, "Meeting title: %s\n", t.Title)
	if t.HasWindow() {
		fmt.Fprintf(&b, "Meeting time: %s to %s\n",
			t.MeetingStart.Format(time.RFC3339), t.MeetingEnd.Format(time.RFC3339))
		if t.Interpolated {
			b.WriteString("Meeting time is approximate.\n")
		}
	}
	if entry != nil {
		fmt.Fprintf(&b, "Scheduled as: %s\n", entry.Title)
		if len(entry.Participants) > 0 {
			fmt.Fprintf(&b, "Scheduled participants: %s\n", strings.Join(entry.Participants, ", "))
		}
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(t.Body)

	notes, err := e.client.Complete(ctx, system, b.String())
	if err != nil {
		return "", err
	}
	e.logger.Info("notes generated",
		logging.String(logging.FieldTitle, t.Title),
		logging.Int("bytes", len(notes)))
	return strings.TrimSpace(notes), nil
}

// TitleFromNotes extracts the notes' own title: the text of a leading
// level-1 markdown heading. Section headings ("## Summary" and deeper) do
// not count, and notes that do not open with a title yield "".
func TitleFromNotes(notes string) string {
	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	return ""
}

// loadPrompt reads the configured prompt file, falling back to the built-in
// prompt when the file is missing or unreadable.
func (e *LLMEngine) loadPrompt() string {
	if e.promptFile == "" || !fileutil.FileExists(e.promptFile) {
		return e.fallback
	}
	data, err := os.ReadFile(e.promptFile)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		e.logger.Warn("prompt file unreadable, using built-in prompt",
			logging.String("path", e.promptFile))
		return e.fallback
	}
	return string(data)
}
