package taskgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/shortkeys/internal/errors"
)

// Func is a task body.
type Func func(ctx context.Context, tc *Context) error

// Step is a group of task names that run concurrently. A one-element Step
// is a plain sequential prerequisite.
type Step []string

// Task is a named unit of work.
type Task struct {
	Name        string
	Description string
	// Steps run in order before Run.
	Steps []Step
	// Run may be nil for tasks that only aggregate prerequisites.
	Run Func
	// Hidden tasks are omitted from listings.
	Hidden bool
}

// Prerequisites returns every task name referenced by t's steps, in order.
func (t Task) Prerequisites() []string {
	var names []string
	for _, step := range t.Steps {
		names = append(names, step...)
	}
	return names
}

// String renders the step structure, e.g. "env:dev -> lint -> [serve, watch]".
func (t Task) String() string {
	parts := make([]string, 0, len(t.Steps))
	for _, step := range t.Steps {
		if len(step) == 1 {
			parts = append(parts, step[0])
			continue
		}
		parts = append(parts, "["+strings.Join(step, ", ")+"]")
	}
	return strings.Join(parts, " -> ")
}

// Registry holds task definitions by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Add registers a task. Names must be unique and non-empty, and steps may
// not be empty.
func (r *Registry) Add(t Task) error {
	if t.Name == "" {
		return errors.NewValidationError("task name cannot be empty")
	}
	for i, step := range t.Steps {
		if len(step) == 0 {
			return errors.NewValidationError(fmt.Sprintf("task %q has an empty step", t.Name)).WithField(fmt.Sprintf("steps[%d]", i))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.Name]; exists {
		return errors.NewValidationError(fmt.Sprintf("task %q is already registered", t.Name))
	}
	r.tasks[t.Name] = t
	return nil
}

// MustAdd is Add that panics on error, for static task tables.
func (r *Registry) MustAdd(t Task) {
	if err := r.Add(t); err != nil {
		panic(err)
	}
}

// Get returns the named task.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns all task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Visible returns the non-hidden tasks sorted by name.
func (r *Registry) Visible() []Task {
	var out []Task
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		if !t.Hidden {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks that every prerequisite is registered and that no task
// reaches itself through its prerequisites.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, dep := range r.tasks[name].Prerequisites() {
			if _, ok := r.tasks[dep]; !ok {
				return fmt.Errorf("%w: %q (required by %q)", errors.ErrUnknownTask, dep, name)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.tasks))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range path {
				if n == name {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), name)
			return fmt.Errorf("%w: %s", errors.ErrDependencyCycle, strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		path = append(path, name)
		for _, dep := range r.tasks[name].Prerequisites() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
