package config

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Server: Server{
			Bind: "127.0.0.1:9876",
		},
		Paths: Paths{
			DataRepo: "~/.local/share/meetingnotesd/data",
			StateDir: "~/.local/share/meetingnotesd/state",
			LogDir:   "~/.local/share/meetingnotesd/logs",
		},
		Git: Git{
			Remote:                "origin",
			Branch:                "main",
			AutoCommit:            true,
			AutoPush:              true,
			CommitMessageTemplate: "Add transcript: %s",
			PushRetries:           3,
		},
		Sync: Sync{
			Enabled:             true,
			OnStartup:           true,
			BeforeWebhook:       true,
			PollIntervalSeconds: 300,
			FFOnly:              true,
		},
		Hooks: Hooks{
			TimeoutSeconds: 600,
		},
		Dispatch: Dispatch{
			Mode: "standalone",
			Standalone: Standalone{
				Async:          false,
				TimeoutSeconds: 1800,
			},
			Relay: Relay{
				Ref:            "main",
				TimeoutSeconds: 20,
			},
		},
		Processing: Processing{
			MinBodyChars:             200,
			MinDurationSeconds:       60,
			SplitMinBodyChars:        5000,
			SplitMinDurationSeconds:  3600,
			MatchConfidenceThreshold: 0.7,
			RecentNotesLimit:         30,
		},
		LLM: LLM{
			BaseURL:        "https://openrouter.ai/api/v1",
			TimeoutSeconds: 60,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
