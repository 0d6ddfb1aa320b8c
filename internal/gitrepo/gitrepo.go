// Package gitrepo wraps the git operations the daemon performs on the data
// repository: clone, fast-forward pull, scoped commit, and push. All
// mutations are serialized through one mutex so concurrent webhooks cannot
// interleave index operations.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/services"
)

// Runner executes a git subcommand in dir and returns its combined output.
// Tests substitute a fake; production uses the git binary.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs git via os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, services.Wrapf(services.ErrExternalTool, "git", args[0], err, "git %s: %s", strings.Join(args, " "), text)
	}
	return text, nil
}

// Repo is a handle to the data repository working copy.
type Repo struct {
	dir    string
	cfg    config.Git
	runner Runner
	logger *slog.Logger

	mu sync.Mutex
}

// New builds a repo handle. The working copy may not exist yet; EnsureReady
// creates it.
func New(dir string, cfg config.Git, runner Runner, logger *slog.Logger) *Repo {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Repo{dir: dir, cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "gitrepo")}
}

// Dir returns the working copy path.
func (r *Repo) Dir() string {
	return r.dir
}

// EnsureReady makes the working copy usable: clones when missing and a
// remote URL is configured, or verifies an existing repository.
func (r *Repo) EnsureReady(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err == nil {
		return nil
	}

	if r.cfg.RepositoryURL == "" {
		return services.Wrapf(services.ErrSync, "git", "ensure", nil,
			"no repository at %s and git.repository_url is not set", r.dir)
	}

	if err := os.MkdirAll(filepath.Dir(r.dir), 0o755); err != nil {
		return services.Wrap(services.ErrWrite, "git", "ensure", "create parent directory", err)
	}

	r.logger.Info("cloning data repository",
		logging.String("url", r.cfg.RepositoryURL),
		logging.String("dir", r.dir))
	args := []string{"clone", "--branch", r.cfg.Branch, r.cfg.RepositoryURL, r.dir}
	if _, err := r.runner.Run(ctx, ".", args...); err != nil {
		return services.Wrap(services.ErrSync, "git", "clone", "clone data repository", err)
	}
	return nil
}

// Head returns the current commit hash.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.runner.Run(ctx, r.dir, "rev-parse", "HEAD")
}

// Pull fast-forwards the working copy and reports whether new commits
// arrived. Local changes that prevent a fast-forward fail the pull rather
// than being merged over.
func (r *Repo) Pull(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pullLocked(ctx)
}

func (r *Repo) pullLocked(ctx context.Context) (bool, error) {
	before, err := r.Head(ctx)
	if err != nil {
		return false, services.Wrap(services.ErrSync, "git", "pull", "read HEAD", err)
	}
	if _, err := r.runner.Run(ctx, r.dir, "pull", "--ff-only", r.cfg.Remote, r.cfg.Branch); err != nil {
		return false, services.Wrap(services.ErrSync, "git", "pull", "fast-forward pull", err)
	}
	after, err := r.Head(ctx)
	if err != nil {
		return false, services.Wrap(services.ErrSync, "git", "pull", "read HEAD", err)
	}
	return before != after, nil
}

// CommitPaths stages exactly the given paths (relative to the repo root) and
// commits them. Committing nothing is not an error; the commit is skipped.
func (r *Repo) CommitPaths(ctx context.Context, message string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	addArgs := append([]string{"add", "--"}, paths...)
	if _, err := r.runner.Run(ctx, r.dir, addArgs...); err != nil {
		return services.Wrap(services.ErrSync, "git", "add", "stage paths", err)
	}

	// Nothing staged means the files were already committed.
	if _, err := r.runner.Run(ctx, r.dir, "diff", "--cached", "--quiet"); err == nil {
		r.logger.Debug("nothing to commit", logging.String("paths", strings.Join(paths, " ")))
		return nil
	}

	if _, err := r.runner.Run(ctx, r.dir, "commit", "-m", message); err != nil {
		return services.Wrap(services.ErrSync, "git", "commit", "commit staged paths", err)
	}
	r.logger.Info("committed", logging.String("message", message))
	return nil
}

// Push pushes the branch, pulling first so the push lands on the remote tip.
// A rejected push is retried after another pull, up to the configured number
// of retries.
func (r *Repo) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts := r.cfg.PushRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return services.Wrap(services.ErrTimeout, "git", "push", "context cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if _, err := r.pullLocked(ctx); err != nil {
			lastErr = err
			continue
		}
		if _, err := r.runner.Run(ctx, r.dir, "push", r.cfg.Remote, r.cfg.Branch); err != nil {
			lastErr = services.Wrap(services.ErrSync, "git", "push", "push branch", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("push failed after %d attempts: %w", attempts, lastErr)
}

// CommitMessage formats the configured commit message template for a filename.
func (r *Repo) CommitMessage(filename string) string {
	tmpl := r.cfg.CommitMessageTemplate
	if tmpl == "" {
		tmpl = "Add transcript: %s"
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, filename)
	}
	return tmpl + " " + filename
}
