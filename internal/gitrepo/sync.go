package gitrepo

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/notifications"
)

// SyncManager keeps the working copy current: an interval pull loop plus
// on-demand pulls before webhook handling. When a pull brings new commits it
// runs the configured hook command in the background.
type SyncManager struct {
	repo     *Repo
	cfg      config.Sync
	hooks    config.Hooks
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
	dirty    bool

	hookWG sync.WaitGroup
}

// NewSyncManager builds a sync manager for the repo. notifier may be nil.
func NewSyncManager(repo *Repo, cfg config.Sync, hooks config.Hooks, notifier notifications.Service, logger *slog.Logger) *SyncManager {
	return &SyncManager{
		repo:     repo,
		cfg:      cfg,
		hooks:    hooks,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "sync"),
	}
}

// Run executes the interval pull loop until ctx is cancelled. Pending hook
// commands are waited for on exit.
func (m *SyncManager) Run(ctx context.Context) {
	defer m.hookWG.Wait()
	if !m.cfg.Enabled {
		<-ctx.Done()
		return
	}

	interval := time.Duration(m.cfg.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SyncNow(ctx)
		}
	}
}

// SyncNow pulls immediately, firing the new-commits hook when the pull
// advanced HEAD. Errors are recorded for the status surface and logged, not
// returned: a failed background pull must not take the daemon down.
func (m *SyncManager) SyncNow(ctx context.Context) {
	newCommits, err := m.repo.Pull(ctx)

	m.mu.Lock()
	wasFailing := m.lastErr != nil
	m.lastSync = time.Now()
	m.lastErr = err
	if err == nil && newCommits {
		m.dirty = true
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("sync failed", logging.Error(err))
		// Notify once per outage, not on every failed tick.
		if m.notifier != nil && !wasFailing {
			m.notifier.SyncFailed(ctx, err.Error())
		}
		return
	}
	if newCommits {
		m.logger.Info("pulled new commits")
		m.fireHook()
	}
}

// Status returns the time and outcome of the most recent sync.
func (m *SyncManager) Status() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync, m.lastErr
}

// Dirty reports whether a pull has brought in new commits that have not yet
// been processed.
func (m *SyncManager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// MarkClean clears the dirty flag after the new commits have been handled.
func (m *SyncManager) MarkClean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = false
}

// fireHook runs the on-new-commits command without blocking the sync loop.
// Hook failures are logged and dropped.
func (m *SyncManager) fireHook() {
	command := m.hooks.OnNewCommitsCommand
	if command == "" {
		return
	}

	m.hookWG.Add(1)
	go func() {
		defer m.hookWG.Done()

		timeout := time.Duration(m.hooks.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		if m.hooks.WorkingDirectory != "" {
			cmd.Dir = m.hooks.WorkingDirectory
		} else {
			cmd.Dir = m.repo.Dir()
		}
		out, err := cmd.CombinedOutput()
		if err != nil {
			m.logger.Warn("new-commits hook failed",
				logging.String("command", command),
				logging.String("output", string(out)),
				logging.Error(err))
			return
		}
		m.logger.Info("new-commits hook completed", logging.String("command", command))
	}()
}
