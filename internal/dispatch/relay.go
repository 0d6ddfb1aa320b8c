package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/gitrepo"
	"meetingnotesd/internal/jobs"
	"meetingnotesd/internal/logging"
	"meetingnotesd/internal/services"
)

const githubAPIBase = "https://api.github.com"

// relayStrategy pushes the stored transcript and triggers a workflow
// dispatch in the processing repository. The remote workflow does the heavy
// lifting; this daemon only has to get the data there and ring the bell.
type relayStrategy struct {
	cfg        config.Relay
	repo       *gitrepo.Repo
	store      *jobs.Store
	token      string
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newRelay(cfg *config.Config, repo *gitrepo.Repo, store *jobs.Store, logger *slog.Logger) (*relayStrategy, error) {
	token := strings.TrimSpace(os.Getenv("GH_TOKEN"))
	if token == "" {
		return nil, services.Wrap(services.ErrInput, "dispatch", "relay", "relay mode requires the GH_TOKEN environment variable", nil)
	}
	timeout := time.Duration(cfg.Dispatch.Relay.TimeoutSeconds) * time.Second
	return &relayStrategy{
		cfg:        cfg.Dispatch.Relay,
		repo:       repo,
		store:      store,
		token:      token,
		apiBase:    githubAPIBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "dispatch"),
	}, nil
}

func (r *relayStrategy) Name() string { return "relay" }

// Dispatch pushes the branch and triggers the remote workflow with the
// transcript filename as input.
func (r *relayStrategy) Dispatch(ctx context.Context, req Request) error {
	err := r.dispatch(ctx, req)
	finishJob(ctx, r.store, r.logger, req.JobID, err)
	return err
}

func (r *relayStrategy) dispatch(ctx context.Context, req Request) error {
	if err := r.repo.Push(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"ref": r.cfg.Ref,
		"inputs": map[string]string{
			"filename": req.Filename,
		},
	})
	if err != nil {
		return services.Wrap(services.ErrInput, "dispatch", "relay", "encode workflow payload", err)
	}

	url := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches", r.apiBase, r.cfg.Repo, r.cfg.Workflow)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrInput, "dispatch", "relay", "build workflow request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.token)
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrDispatch, "dispatch", "relay", "workflow dispatch request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return services.Wrapf(services.ErrDispatch, "dispatch", "relay", nil,
			"workflow dispatch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	r.logger.Info("workflow dispatched",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String(logging.FieldFilename, req.Filename),
		logging.String("workflow", r.cfg.Workflow))
	return nil
}
