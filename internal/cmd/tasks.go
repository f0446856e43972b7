package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shortkeys/internal/pipeline"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	reg, _, err := pipeline.NewRegistry()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tRUNS\tDESCRIPTION")
	for _, t := range reg.Visible() {
		steps := t.String()
		if steps == "" {
			steps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, steps, t.Description)
	}
	return tw.Flush()
}
