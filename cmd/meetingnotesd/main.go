// meetingnotesd is an always-on daemon that receives meeting transcripts
// over a webhook, stores them in a git-backed repository, and turns them
// into meeting notes locally or through a remote workflow.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"log/slog"

	"github.com/spf13/cobra"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/daemon"
	"meetingnotesd/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "meetingnotesd",
		Short:         "Meeting transcript ingestion and note generation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		serveCommand(),
		processCommand(),
		syncCommand(),
		jobsCommand(),
		statusCommand(),
		configCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and builds the logger for a command.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !exists && configPath != "" {
		return nil, nil, fmt.Errorf("config file not found: %s", path)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			// Log to file as well once the log directory exists.
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err = logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "meetingnotesd.log")},
			})
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
}
