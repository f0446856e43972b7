package cmd

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/taskgraph"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run",
	Long:  `Display the report saved by the most recent 'shortkeys run'.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report, err := taskgraph.LoadReport(cfg.Tasks.StateDir)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	if err != nil {
		return err
	}

	result := "succeeded"
	if !report.Success {
		result = "failed"
	}
	fmt.Fprintf(out, "Run: %s\n", report.RunID)
	fmt.Fprintf(out, "Tasks: %s\n", strings.Join(report.Tasks, " "))
	fmt.Fprintf(out, "Profile: %s\n", report.Profile)
	fmt.Fprintf(out, "Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Result: %s (%s)\n\n", result, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	for _, r := range report.Results {
		fmt.Fprintf(out, "  %-8s %-20s %s\n", r.Status, r.Name, r.Duration().Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(out, "           %s\n", r.Error)
		}
	}
	return nil
}
