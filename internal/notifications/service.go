// Package notifications sends push notifications about pipeline outcomes
// through ntfy. When no topic is configured every call is a no-op, so
// callers never need to nil-check.
package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/logging"
)

// Service publishes pipeline events.
type Service interface {
	TranscriptStored(ctx context.Context, title, filename string)
	TranscriptDiscarded(ctx context.Context, title, reason string)
	TranscriptSplit(ctx context.Context, title string, parts int)
	ProcessingSucceeded(ctx context.Context, title, filename string)
	ProcessingFailed(ctx context.Context, title, message, hint string)
	SyncFailed(ctx context.Context, message string)
}

// New returns a ntfy-backed service, or a no-op service when no topic is
// configured.
func New(cfg config.Notifications, logger *slog.Logger) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		topicURL:   topic,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "notifications"),
	}
}

type ntfyService struct {
	topicURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

func (s *ntfyService) TranscriptStored(ctx context.Context, title, filename string) {
	s.publish(ctx, "Transcript received", fmt.Sprintf("%s stored as %s", title, filename), "inbox_tray", "default")
}

func (s *ntfyService) TranscriptDiscarded(ctx context.Context, title, reason string) {
	s.publish(ctx, "Transcript discarded", fmt.Sprintf("%s: %s", title, reason), "wastebasket", "min")
}

func (s *ntfyService) TranscriptSplit(ctx context.Context, title string, parts int) {
	s.publish(ctx, "Transcript split", fmt.Sprintf("%s contained %d meetings", title, parts), "scissors", "default")
}

func (s *ntfyService) ProcessingSucceeded(ctx context.Context, title, filename string) {
	s.publish(ctx, "Notes ready", fmt.Sprintf("%s (%s)", title, filename), "white_check_mark", "default")
}

func (s *ntfyService) ProcessingFailed(ctx context.Context, title, message, hint string) {
	body := fmt.Sprintf("%s: %s", title, message)
	if hint != "" {
		body += "\nHint: " + hint
	}
	s.publish(ctx, "Processing failed", body, "x", "high")
}

func (s *ntfyService) SyncFailed(ctx context.Context, message string) {
	s.publish(ctx, "Repository sync failed", message, "warning", "high")
}

// publish sends one notification. Failures are logged and swallowed; a
// notification outage must never fail the pipeline.
func (s *ntfyService) publish(ctx context.Context, title, message, tags, priority string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.topicURL, strings.NewReader(message))
	if err != nil {
		s.logger.Warn("build notification request failed", logging.Error(err))
		return
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("notification send failed", logging.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("notification rejected",
			logging.Int("status", resp.StatusCode),
			logging.String("title", title))
	}
}

type noopService struct{}

func (noopService) TranscriptStored(context.Context, string, string)      {}
func (noopService) TranscriptDiscarded(context.Context, string, string)   {}
func (noopService) TranscriptSplit(context.Context, string, int)          {}
func (noopService) ProcessingSucceeded(context.Context, string, string)   {}
func (noopService) ProcessingFailed(context.Context, string, string, string) {}
func (noopService) SyncFailed(context.Context, string)                    {}
