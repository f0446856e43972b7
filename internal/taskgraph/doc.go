// Package taskgraph runs named tasks with ordered and grouped prerequisites.
//
// A [Task] lists its prerequisites as [Step]s. Steps run one after another;
// the task names inside one step run concurrently. When every step has
// succeeded the task's own body runs. Within one [Runner.Run] invocation each
// task runs at most once, and every task that requires it shares that single
// result.
//
//	reg := taskgraph.NewRegistry()
//	reg.MustAdd(taskgraph.Task{Name: "lint:js", Run: lintJS})
//	reg.MustAdd(taskgraph.Task{Name: "lint:css", Run: lintCSS})
//	reg.MustAdd(taskgraph.Task{
//	    Name:  "lint",
//	    Steps: []taskgraph.Step{{"styles:less"}, {"lint:css", "lint:js"}},
//	})
//
//	runner := taskgraph.NewRunner(reg, taskgraph.WithBus(bus), taskgraph.WithLogger(logger))
//	report, err := runner.Run(ctx, taskgraph.NewContext(cfg, logger), "lint")
//
// The first failure stops the remaining steps, cancels the tasks running
// beside it, and is returned as an *errors.TaskError. Tasks are never
// retried and have no timeout of their own.
//
// Run reports can be saved to a state directory with [SaveReport]; the write
// is atomic and guarded by an flock(2) lock so concurrent invocations do not
// interleave.
package taskgraph
