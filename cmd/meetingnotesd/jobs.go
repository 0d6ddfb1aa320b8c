package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"meetingnotesd/internal/jobs"
)

func jobsCommand() *cobra.Command {
	var statusFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent transcript jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := jobs.Open(cfg.Paths.StateDir)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), jobs.Status(statusFilter), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no jobs")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Title", "Status", "Filename", "Created", "Error"})
			for _, job := range list {
				t.AppendRow(table.Row{
					job.ID[:8],
					truncateCell(job.Title, 40),
					coloredStatus(job.Status),
					job.Filename,
					job.CreatedAt.Local().Format(time.DateTime),
					truncateCell(job.ErrorMessage, 50),
				})
			}
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				t.SetStyle(table.StyleDefault)
			} else {
				t.SetStyle(table.StyleRounded)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (running, succeeded, failed, deduplicated)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}

func coloredStatus(s jobs.Status) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return string(s)
	}
	switch s {
	case jobs.StatusSucceeded:
		return text.FgGreen.Sprint(s)
	case jobs.StatusFailed:
		return text.FgRed.Sprint(s)
	case jobs.StatusRunning:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgCyan.Sprint(s)
	}
}

func truncateCell(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
