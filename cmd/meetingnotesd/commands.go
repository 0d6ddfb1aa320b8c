package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"meetingnotesd/internal/gitrepo"
	"meetingnotesd/internal/notifications"
	"meetingnotesd/internal/process"
	"meetingnotesd/internal/services/llm"
	"meetingnotesd/internal/splitter"
	"meetingnotesd/internal/summarize"
)

func processCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Process all transcripts currently in the inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			repo := gitrepo.New(cfg.Paths.DataRepo, cfg.Git, nil, logger)
			if err := repo.EnsureReady(cmd.Context()); err != nil {
				return err
			}

			var detector splitter.Detector
			var engine summarize.Engine
			if llmCfg := cfg.GetLLM(); llmCfg.APIKey != "" {
				splitClient, err := llm.New(cfg.SplitterLLM())
				if err != nil {
					return err
				}
				detector = splitter.NewLLMDetector(splitClient, logger)

				sumClient, err := llm.New(llmCfg)
				if err != nil {
					return err
				}
				promptFile := cfg.Processing.PromptFile
				if promptFile == "" {
					promptFile = filepath.Join(cfg.Paths.DataRepo, "prompt.txt")
				}
				engine = summarize.NewLLMEngine(sumClient, promptFile, logger)
			} else {
				fmt.Fprintln(os.Stderr, "warning: no LLM API key, transcripts will be archived without notes")
			}

			notifier := notifications.New(cfg.Notifications, logger)
			pipeline := process.New(cfg, repo, detector, engine, notifier, logger)

			outcomes, err := pipeline.ProcessInbox(cmd.Context())
			for _, o := range outcomes {
				switch {
				case o.Discarded:
					fmt.Printf("discarded %s: %s\n", o.Filename, o.Reason)
				case o.Parts > 0:
					fmt.Printf("split %s into %d meetings\n", o.Filename, o.Parts)
				default:
					fmt.Printf("processed %s\n", o.Filename)
				}
			}
			if len(outcomes) == 0 && err == nil {
				fmt.Println("inbox is empty")
			}
			return err
		},
	}
}

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull the data repository once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			repo := gitrepo.New(cfg.Paths.DataRepo, cfg.Git, nil, logger)
			if err := repo.EnsureReady(cmd.Context()); err != nil {
				return err
			}
			newCommits, err := repo.Pull(cmd.Context())
			if err != nil {
				return err
			}
			if newCommits {
				fmt.Println("pulled new commits")
			} else {
				fmt.Println("already up to date")
			}
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + cfg.Server.Bind + "/status")
			if err != nil {
				fmt.Printf("daemon not reachable at %s\n", cfg.Server.Bind)
				return nil
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return fmt.Errorf("unexpected status response: %w", err)
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}
