package dispatch

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/notifications"
	"meetingnotesd/internal/process"
	"meetingnotesd/internal/services"
)

// standaloneStrategy runs the local pipeline, synchronously or in the
// background depending on configuration, always under a hard timeout so a
// wedged external call cannot pin a webhook worker forever.
type standaloneStrategy struct {
	cfg      config.Standalone
	pipeline *process.Pipeline
	store    *jobs.Store
	notifier notifications.Service
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func newStandalone(cfg *config.Config, pipeline *process.Pipeline, store *jobs.Store, notifier notifications.Service, logger *slog.Logger) *standaloneStrategy {
	return &standaloneStrategy{
		cfg:      cfg.Dispatch.Standalone,
		pipeline: pipeline,
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
	}
}

func (s *standaloneStrategy) Name() string { return "standalone" }

// Dispatch processes the transcript locally. In async mode the call returns
// immediately and the job finishes in the background.
func (s *standaloneStrategy) Dispatch(ctx context.Context, req Request) error {
	if s.cfg.Async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := s.run(context.Background(), req)
			finishJob(context.Background(), s.store, s.logger, req.JobID, err)
			if err != nil {
				s.logger.Error("background processing failed",
					logging.String(logging.FieldJobID, req.JobID),
					logging.Error(err))
			}
		}()
		return nil
	}

	err := s.run(ctx, req)
	finishJob(ctx, s.store, s.logger, req.JobID, err)
	return err
}

func (s *standaloneStrategy) run(ctx context.Context, req Request) error {
	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.pipeline.ProcessFile(ctx, req.Path)
	if err != nil && ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, "dispatch", "standalone", "processing exceeded timeout", err)
	}
	return err
}

// Wait blocks until background dispatches complete, used at shutdown.
func (s *standaloneStrategy) Wait() {
	s.wg.Wait()
}
