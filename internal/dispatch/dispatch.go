// Package dispatch hands stored transcripts to the processing strategy
// chosen at startup: standalone runs the local pipeline, relay triggers a
// remote workflow against the pushed repository. Exactly one strategy is
// active per daemon.
package dispatch

import (
	"context"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/gitrepo"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/notifications"
	"meetingnotesd/internal/process"
	"meetingnotesd/internal/services"
)

// Request identifies a stored transcript awaiting processing.
type Request struct {
	JobID    string
	Title    string
	Filename string
	// Path is the absolute inbox path of the stored transcript.
	Path string
}

// Strategy processes a stored transcript. Implementations own the job's
// terminal status: by the time Dispatch returns (or, for asynchronous
// strategies, by the time background work ends) the job is finished.
type Strategy interface {
	Name() string
	Dispatch(ctx context.Context, req Request) error
}

// New selects and builds the configured strategy.
func New(cfg *config.Config, pipeline *process.Pipeline, repo *gitrepo.Repo, store *jobs.Store, notifier notifications.Service, logger *slog.Logger) (Strategy, error) {
	if cfg.StandaloneMode() {
		return newStandalone(cfg, pipeline, store, notifier, logger), nil
	}
	return newRelay(cfg, repo, store, logger)
}

// finishJob records the terminal status for a dispatch, logging rather than
// failing when the job store write itself errors.
func finishJob(ctx context.Context, store *jobs.Store, logger *slog.Logger, jobID string, err error) {
	status := jobs.StatusSucceeded
	message := ""
	if err != nil {
		status = jobs.StatusFailed
		message = err.Error()
		if hint := services.ErrorHint(err); hint != "" {
			message += " (" + hint + ")"
		}
	}
	if storeErr := store.Finish(ctx, jobID, status, message); storeErr != nil {
		logger.Error("record job outcome failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(storeErr))
	}
}
