package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/event"
	"github.com/Iron-Ham/shortkeys/internal/pipeline"
	"github.com/Iron-Ham/shortkeys/internal/taskgraph"
	"github.com/Iron-Ham/shortkeys/internal/tui"
)

const defaultTask = "default"

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks and their prerequisites",
	Long: `Run one or more tasks in order. Each task's prerequisites run first;
grouped prerequisites run concurrently. Without arguments the default task
runs (lint, then serve and watch in development).

Run 'shortkeys tasks' to list the available tasks.`,
	RunE: runRun,
}

var runFlags struct {
	dryRun    bool
	progress  bool
	testFiles []string
	db        string
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "print the plan and log commands without running them")
	runCmd.Flags().BoolVar(&runFlags.progress, "progress", false, "show live progress when stdout is a terminal")
	runCmd.Flags().StringSliceVar(&runFlags.testFiles, "test-files", nil, "server test packages to run instead of the configured targets")
	runCmd.Flags().StringVar(&runFlags.db, "db", "", "store driver override: mongo or memory")
}

func runRun(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		names = []string{defaultTask}
	}

	db := runFlags.db
	if runFlags.dryRun {
		db = config.DriverMemory
	}
	cfg, err := loadConfig(db)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	progress := runFlags.progress && isTerminal(out)
	logger, err := newLogger(cfg, progress)
	if err != nil {
		return err
	}
	defer logger.Close()

	bus := event.NewBus()
	bus.OnPanic = func(eventType string, r any, _ []byte) {
		logger.Error("event handler panicked", "event", eventType, "panic", r)
	}
	reg, _, err := pipeline.NewRegistry(pipeline.WithBus(bus))
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		levels, err := taskgraph.Plan(reg, names...)
		if err != nil {
			return err
		}
		printPlan(out, reg, levels)
	}

	tc := taskgraph.NewContext(cfg, logger)
	tc.Resolve = profileResolver(db)
	tc.Args = taskgraph.Args{TestFiles: runFlags.testFiles, DryRun: runFlags.dryRun}
	defer func() {
		if err := tc.Close(context.Background()); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	runner := taskgraph.NewRunner(reg,
		taskgraph.WithBus(bus),
		taskgraph.WithLogger(logger),
		taskgraph.WithMaxParallel(cfg.Tasks.MaxParallel),
	)

	var report *taskgraph.Report
	if progress {
		report, err = runWithProgress(cmd.Context(), runner, tc, bus, out, names)
	} else {
		report, err = runner.Run(cmd.Context(), tc, names...)
	}

	if report != nil && !runFlags.dryRun {
		if saveErr := taskgraph.SaveReport(cfg.Tasks.StateDir, report); saveErr != nil {
			logger.Warn("failed to save run report", "dir", cfg.Tasks.StateDir, "error", saveErr)
		}
	}
	if err != nil {
		if task, ok := errors.FailedTask(err); ok {
			return fmt.Errorf("task %q failed: %w", task, err)
		}
		return err
	}
	return nil
}

// runWithProgress runs the tasks while a bubbletea program renders runner
// events. Quitting the program cancels the run.
func runWithProgress(ctx context.Context, runner *taskgraph.Runner, tc *taskgraph.Context, bus *event.Bus, out io.Writer, names []string) (*taskgraph.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(names), tea.WithOutput(out), tea.WithContext(ctx))
	sub := tui.Attach(bus, p)
	defer bus.Unsubscribe(sub)

	type result struct {
		report *taskgraph.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := runner.Run(ctx, tc, names...)
		done <- result{report, err}
	}()

	final, perr := p.Run()
	if m, ok := final.(tui.Model); perr != nil || (ok && m.Interrupted()) {
		cancel()
	}
	res := <-done
	return res.report, res.err
}

func printPlan(w io.Writer, reg *taskgraph.Registry, levels [][]string) {
	fmt.Fprintln(w, "Plan:")
	for i, level := range levels {
		fmt.Fprintf(w, "  %d. %s\n", i+1, strings.Join(level, ", "))
	}
	fmt.Fprintln(w)
	for _, level := range levels {
		for _, name := range level {
			if t, ok := reg.Get(name); ok && len(t.Steps) > 0 {
				fmt.Fprintf(w, "  %s = %s\n", name, t)
			}
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
