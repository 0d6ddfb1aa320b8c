package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataRepo, err = expandPath(c.Paths.DataRepo); err != nil {
		return err
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Processing.PromptFile != "" {
		if c.Processing.PromptFile, err = expandPath(c.Processing.PromptFile); err != nil {
			return err
		}
	}
	if c.Hooks.WorkingDirectory != "" {
		if c.Hooks.WorkingDirectory, err = expandPath(c.Hooks.WorkingDirectory); err != nil {
			return err
		}
	}

	c.Dispatch.Mode = strings.ToLower(strings.TrimSpace(c.Dispatch.Mode))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Server.Bind) == "" {
		problems = append(problems, "server.bind must not be empty")
	}
	if c.Paths.DataRepo == "" {
		problems = append(problems, "paths.data_repo must not be empty")
	}
	if c.Paths.StateDir == "" {
		problems = append(problems, "paths.state_dir must not be empty")
	}

	switch c.Dispatch.Mode {
	case "standalone":
		if c.Dispatch.Standalone.TimeoutSeconds <= 0 {
			problems = append(problems, "dispatch.standalone.timeout_seconds must be positive")
		}
	case "relay":
		if strings.TrimSpace(c.Dispatch.Relay.Repo) == "" {
			problems = append(problems, "dispatch.relay.repo is required in relay mode")
		}
		if strings.TrimSpace(c.Dispatch.Relay.Workflow) == "" {
			problems = append(problems, "dispatch.relay.workflow is required in relay mode")
		}
		if c.Dispatch.Relay.TimeoutSeconds <= 0 {
			problems = append(problems, "dispatch.relay.timeout_seconds must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("dispatch.mode must be \"standalone\" or \"relay\", got %q", c.Dispatch.Mode))
	}

	if c.Sync.Enabled && c.Sync.PollIntervalSeconds <= 0 {
		problems = append(problems, "sync.poll_interval_seconds must be positive when sync is enabled")
	}
	if c.Git.AutoPush && strings.TrimSpace(c.Git.RepositoryURL) == "" && c.Dispatch.Mode == "relay" {
		problems = append(problems, "git.repository_url is required in relay mode")
	}
	if c.Git.PushRetries < 0 {
		problems = append(problems, "git.push_retries must not be negative")
	}

	if c.Processing.MinBodyChars < 0 {
		problems = append(problems, "processing.min_body_chars must not be negative")
	}
	if c.Processing.MinDurationSeconds < 0 {
		problems = append(problems, "processing.min_duration_seconds must not be negative")
	}
	if c.Processing.MatchConfidenceThreshold < 0 || c.Processing.MatchConfidenceThreshold > 1 {
		problems = append(problems, "processing.match_confidence_threshold must be between 0 and 1")
	}
	if c.Processing.RecentNotesLimit < 0 {
		problems = append(problems, "processing.recent_notes_limit must not be negative")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
