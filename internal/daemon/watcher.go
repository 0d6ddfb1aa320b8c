package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/process"
)

// inboxWatcher picks up transcripts dropped into the inbox by hand (or by a
// sync from another machine) and runs them through the pipeline. Writes are
// debounced so a file still being copied is not processed half-finished.
type inboxWatcher struct {
	dir      string
	pipeline *process.Pipeline
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	// onDrained is called after a successful run leaves the inbox empty.
	onDrained func()

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newInboxWatcher(dir string, pipeline *process.Pipeline, logger *slog.Logger) (*inboxWatcher, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &inboxWatcher{
		dir:      dir,
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		watcher:  w,
		debounce: 2 * time.Second,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run consumes filesystem events until ctx is cancelled.
func (w *inboxWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

// schedule (re)arms the debounce timer for a path; the file is processed
// once events stop arriving for it.
func (w *inboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		// A webhook dispatch may already have archived the file.
		if _, err := os.Stat(path); err != nil {
			return
		}
		w.logger.Info("processing dropped transcript",
			logging.String(logging.FieldFilename, filepath.Base(path)))
		if _, err := w.pipeline.ProcessFile(ctx, path); err != nil {
			w.logger.Error("dropped transcript failed",
				logging.String(logging.FieldFilename, filepath.Base(path)),
				logging.Error(err))
			return
		}
		if w.onDrained != nil && w.inboxEmpty() {
			w.onDrained()
		}
	})
}

func (w *inboxWatcher) inboxEmpty() bool {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			return false
		}
	}
	return true
}

func (w *inboxWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
