// Package daemon wires the ingestion server together: single-instance lock,
// repository readiness, background sync, inbox watching, and the webhook
// HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/dispatch"
	"meetingnotesd/internal/gitrepo"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/notifications"
	"meetingnotesd/internal/process"
	"meetingnotesd/internal/services/llm"
	"meetingnotesd/internal/splitter"
	"meetingnotesd/internal/summarize"
)

// Daemon is the meetingnotesd server process.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *gitrepo.Repo
	syncer   *gitrepo.SyncManager
	store    *jobs.Store
	strategy dispatch.Strategy
	pipeline *process.Pipeline
	notifier notifications.Service
	dedup    *dedupSet

	lock      *flock.Flock
	startedAt time.Time
}

// New builds a daemon from configuration. The LLM-backed splitter and
// summarizer are only constructed in standalone mode; relay deployments do
// not need an API key.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	repo := gitrepo.New(cfg.Paths.DataRepo, cfg.Git, nil, logger)
	notifier := notifications.New(cfg.Notifications, logger)
	syncer := gitrepo.NewSyncManager(repo, cfg.Sync, cfg.Hooks, notifier, logger)

	store, err := jobs.Open(cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}

	var pipeline *process.Pipeline
	if cfg.StandaloneMode() {
		var detector splitter.Detector
		var engine summarize.Engine
		if llmCfg := cfg.GetLLM(); llmCfg.APIKey != "" {
			splitClient, err := llm.New(cfg.SplitterLLM())
			if err != nil {
				return nil, err
			}
			detector = splitter.NewLLMDetector(splitClient, logger)

			sumClient, err := llm.New(llmCfg)
			if err != nil {
				return nil, err
			}
			promptFile := cfg.Processing.PromptFile
			if promptFile == "" {
				promptFile = filepath.Join(cfg.Paths.DataRepo, "prompt.txt")
			}
			engine = summarize.NewLLMEngine(sumClient, promptFile, logger)
		} else {
			logger.Warn("no LLM API key configured; transcripts will be archived without splitting or notes")
		}
		pipeline = process.New(cfg, repo, detector, engine, notifier, logger)
	}

	strategy, err := dispatch.New(cfg, pipeline, repo, store, notifier, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		repo:     repo,
		syncer:   syncer,
		store:    store,
		strategy: strategy,
		pipeline: pipeline,
		notifier: notifier,
		dedup:    newDedupSet(defaultDedupCapacity),
	}, nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}
	defer d.releaseLock()
	defer d.store.Close()

	if err := d.repo.EnsureReady(ctx); err != nil {
		return err
	}

	if n, err := d.store.RecoverInterrupted(ctx); err != nil {
		return err
	} else if n > 0 {
		d.logger.Warn("failed jobs interrupted by previous shutdown", logging.Int("count", n))
	}

	if d.cfg.Sync.Enabled && d.cfg.Sync.OnStartup {
		d.syncer.SyncNow(ctx)
	}

	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		d.syncer.Run(syncCtx)
	}()

	var watcher *inboxWatcher
	if d.cfg.StandaloneMode() && d.pipeline != nil {
		w, err := newInboxWatcher(d.cfg.InboxDir(), d.pipeline, d.logger)
		if err != nil {
			d.logger.Warn("inbox watcher unavailable", logging.Error(err))
		} else {
			w.onDrained = d.syncer.MarkClean
			watcher = w
			go watcher.Run(syncCtx)
		}
	}

	d.startedAt = time.Now()
	server := &http.Server{
		Addr:              d.cfg.Server.Bind,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.Server.Bind, err)
	}
	d.logger.Info("daemon started",
		logging.String("bind", d.cfg.Server.Bind),
		logging.String(logging.FieldMode, d.strategy.Name()))

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		cancelSync()
		<-syncDone
		return err
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("server shutdown incomplete", logging.Error(err))
	}
	cancelSync()
	<-syncDone
	if waiter, ok := d.strategy.(interface{ Wait() }); ok {
		waiter.Wait()
	}
	return nil
}

func dispatchRequest(jobID, title, filename, inboxDir string) dispatch.Request {
	return dispatch.Request{
		JobID:    jobID,
		Title:    title,
		Filename: filename,
		Path:     filepath.Join(inboxDir, filename),
	}
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (d *Daemon) acquireLock() error {
	lockPath := filepath.Join(d.cfg.Paths.StateDir, "meetingnotesd.lock")
	d.lock = flock.New(lockPath)
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another meetingnotesd instance holds %s", lockPath)
	}
	return nil
}

func (d *Daemon) releaseLock() {
	if d.lock != nil {
		_ = d.lock.Unlock()
	}
}
