package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP bind configuration for the ingestion daemon.
type Server struct {
	Bind string `toml:"bind"`
}

// Paths contains directory configuration.
type Paths struct {
	// DataRepo is the local working copy of the git-backed data repository.
	// The inbox, transcripts, notes directories and calendar.org live inside it.
	DataRepo string `toml:"data_repo"`
	// StateDir holds daemon-local state (job database, lock file).
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Git contains remote repository settings used for clone, pull, commit, and push.
type Git struct {
	RepositoryURL         string `toml:"repository_url"`
	Remote                string `toml:"remote"`
	Branch                string `toml:"branch"`
	AutoCommit            bool   `toml:"auto_commit"`
	AutoPush              bool   `toml:"auto_push"`
	CommitMessageTemplate string `toml:"commit_message_template"`
	PushRetries           int    `toml:"push_retries"`
}

// Sync contains repository synchronization behavior.
type Sync struct {
	Enabled             bool `toml:"enabled"`
	OnStartup           bool `toml:"on_startup"`
	BeforeWebhook       bool `toml:"before_webhook"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	FFOnly              bool `toml:"ff_only"`
}

// Hooks contains the optional command run after a sync pulls new commits.
type Hooks struct {
	OnNewCommitsCommand string `toml:"on_new_commits_command"`
	WorkingDirectory    string `toml:"working_directory"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Standalone contains settings for local processing mode.
type Standalone struct {
	Async          bool `toml:"async"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// Relay contains settings for remote workflow-dispatch mode.
type Relay struct {
	Repo           string `toml:"repo"`
	Workflow       string `toml:"workflow"`
	Ref            string `toml:"ref"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Dispatch selects and parameterizes the processing strategy.
type Dispatch struct {
	// Mode is "standalone" (process locally) or "relay" (push and trigger a
	// remote workflow). Exactly one strategy is active per deployment.
	Mode       string     `toml:"mode"`
	Standalone Standalone `toml:"standalone"`
	Relay      Relay      `toml:"relay"`
}

// Processing contains transcript pre-filter, splitter, and matcher thresholds.
type Processing struct {
	MinBodyChars             int     `toml:"min_body_chars"`
	MinDurationSeconds       int     `toml:"min_duration_seconds"`
	SplitMinBodyChars        int     `toml:"split_min_body_chars"`
	SplitMinDurationSeconds  int     `toml:"split_min_duration_seconds"`
	MatchConfidenceThreshold float64 `toml:"match_confidence_threshold"`
	RecentNotesLimit         int     `toml:"recent_notes_limit"`
	PromptFile               string  `toml:"prompt_file"`
}

// LLM contains shared LLM connection settings used by the splitter and the
// summarization engine.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	SplitterModel  string `toml:"splitter_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for meetingnotesd.
//
// Configuration sections by subsystem:
//   - Server: HTTP bind address for the webhook surface
//   - Paths: data repository working copy and daemon state directories
//   - Git: remote, branch, commit and push behavior
//   - Sync: fast-forward-only pull cadence and triggers
//   - Hooks: post-sync command run when new commits arrive
//   - Dispatch: standalone vs relay strategy and per-mode parameters
//   - Processing: pre-filter, splitter, and calendar-match thresholds
//   - LLM: shared connection settings for AI collaborators
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Server        Server        `toml:"server"`
	Paths         Paths         `toml:"paths"`
	Git           Git           `toml:"git"`
	Sync          Sync          `toml:"sync"`
	Hooks         Hooks         `toml:"hooks"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Processing    Processing    `toml:"processing"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meetingnotesd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetingnotesd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation. The
// data repo itself is created by the sync manager (clone) when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// InboxDir returns the inbox directory inside the data repository.
func (c *Config) InboxDir() string {
	return filepath.Join(c.Paths.DataRepo, "inbox")
}

// TranscriptsDir returns the archived-transcript directory inside the data repository.
func (c *Config) TranscriptsDir() string {
	return filepath.Join(c.Paths.DataRepo, "transcripts")
}

// NotesDir returns the generated-notes directory inside the data repository.
func (c *Config) NotesDir() string {
	return filepath.Join(c.Paths.DataRepo, "notes")
}

// CalendarPath returns the calendar document path inside the data repository.
func (c *Config) CalendarPath() string {
	return filepath.Join(c.Paths.DataRepo, "calendar.org")
}

// StandaloneMode reports whether local processing is the active dispatch strategy.
func (c *Config) StandaloneMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Dispatch.Mode), "standalone")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains common LLM settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings. The API key falls back to
// the LLM_API_KEY environment variable when not set in the file.
func (c *Config) GetLLM() LLMConfig {
	apiKey := strings.TrimSpace(c.LLM.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	}
	return LLMConfig{
		APIKey:         apiKey,
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// SplitterLLM returns the LLM settings for meeting-boundary detection.
// Falls back to the shared model when no cheaper splitter model is configured.
func (c *Config) SplitterLLM() LLMConfig {
	cfg := c.GetLLM()
	if model := strings.TrimSpace(c.LLM.SplitterModel); model != "" {
		cfg.Model = model
	}
	return cfg
}
