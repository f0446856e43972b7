package taskgraph

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/event"
	"github.com/Iron-Ham/shortkeys/internal/logging"
)

// Runner executes tasks from a Registry.
type Runner struct {
	reg         *Registry
	bus         *event.Bus
	logger      *logging.Logger
	maxParallel int
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithBus publishes task and run events on bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the logger used for task progress.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMaxParallel bounds how many tasks of one step run at once. 0 means
// no bound.
func WithMaxParallel(n int) Option {
	return func(r *Runner) { r.maxParallel = n }
}

// NewRunner creates a Runner over reg.
func NewRunner(reg *Registry, opts ...Option) *Runner {
	r := &Runner{
		reg:    reg,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the runner executes from.
func (r *Runner) Registry() *Registry {
	return r.reg
}

// Run executes the named tasks in order and returns the run report. The
// registry is validated and every name resolved before anything runs. The
// returned error is nil only if every task succeeded.
func (r *Runner) Run(ctx context.Context, tc *Context, names ...string) (*Report, error) {
	runID := uuid.NewString()
	report := &Report{
		RunID:     runID,
		Tasks:     append([]string(nil), names...),
		Profile:   tc.Profile(),
		StartedAt: r.now(),
	}

	err := r.reg.Validate()
	if err == nil {
		for _, name := range names {
			if _, ok := r.reg.Get(name); !ok {
				err = fmt.Errorf("%w: %q", errors.ErrUnknownTask, name)
				break
			}
		}
	}

	if err == nil {
		ex := &execution{
			runner: r,
			tc:     tc,
			runID:  runID,
			log:    r.logger.WithRun(runID),
			calls:  make(map[string]*call),
			report: report,
			index:  make(map[string]int),
		}
		for _, name := range names {
			if err = ex.run(ctx, name); err != nil {
				break
			}
		}
	}

	report.FinishedAt = r.now()
	report.Profile = tc.Profile()
	report.Success = err == nil
	if err != nil {
		report.Error = err.Error()
	}
	r.bus.Publish(event.NewRunFinishedEvent(runID, report.Tasks, err))
	return report, err
}

// call is the single shared execution of one task within a run.
type call struct {
	done chan struct{}
	err  error
}

type execution struct {
	runner *Runner
	tc     *Context
	runID  string
	log    *logging.Logger

	mu     sync.Mutex
	calls  map[string]*call
	report *Report
	index  map[string]int
}

// run executes name once per execution; later callers wait for the first.
func (e *execution) run(ctx context.Context, name string) error {
	e.mu.Lock()
	if c, ok := e.calls[name]; ok {
		e.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	e.calls[name] = c
	e.mu.Unlock()

	c.err = e.execute(ctx, name)
	close(c.done)
	return c.err
}

func (e *execution) execute(ctx context.Context, name string) error {
	task, _ := e.runner.reg.Get(name)
	log := e.log.WithTask(name)
	e.begin(name)
	log.Info("starting task")
	e.runner.bus.Publish(event.NewTaskStartedEvent(e.runID, name))

	err := e.steps(ctx, task)
	if err == nil && task.Run != nil {
		if err = ctx.Err(); err == nil {
			err = e.invoke(ctx, task)
		}
		if err != nil {
			err = errors.NewTaskError(name, err)
		}
	}

	elapsed := e.finish(name, err)
	if err != nil {
		log.Error("task failed", "duration", elapsed, "error", err)
		e.runner.bus.Publish(event.NewTaskFailedEvent(e.runID, name, err, elapsed))
		return err
	}
	log.Info("finished task", "duration", elapsed)
	e.runner.bus.Publish(event.NewTaskFinishedEvent(e.runID, name, elapsed))
	return nil
}

func (e *execution) steps(ctx context.Context, task Task) error {
	for i, step := range task.Steps {
		if err := e.step(ctx, step); err != nil {
			return errors.NewTaskError(task.Name, err).WithStep(i)
		}
	}
	return nil
}

func (e *execution) step(ctx context.Context, step Step) error {
	if len(step) == 1 {
		return e.run(ctx, step[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.runner.maxParallel > 0 {
		g.SetLimit(e.runner.maxParallel)
	}
	for _, name := range step {
		g.Go(func() error { return e.run(gctx, name) })
	}
	return g.Wait()
}

// invoke runs the task body, turning a panic into an error.
func (e *execution) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.WithTask(task.Name).Error("task panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task.Run(ctx, e.tc)
}

func (e *execution) begin(name string) {
	now := e.runner.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index[name] = len(e.report.Results)
	e.report.Results = append(e.report.Results, TaskResult{
		Name:      name,
		Status:    StatusRunning,
		StartedAt: now,
	})
}

func (e *execution) finish(name string, err error) time.Duration {
	now := e.runner.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	res := &e.report.Results[e.index[name]]
	res.FinishedAt = now
	res.Status = StatusSucceeded
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	}
	return res.Duration()
}
