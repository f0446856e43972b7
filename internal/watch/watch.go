// Package watch re-runs tasks when source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/logging"
)

// ChangeFunc receives the tasks mapped to a batch of changed files.
type ChangeFunc func(ctx context.Context, tasks []string)

type rule struct {
	globs []glob.Glob
	tasks []string
}

// Watcher maps file changes to tasks through glob rules. Patterns use '/'
// as the separator: '*' stays within one directory, '**' crosses them.
type Watcher struct {
	rules    []rule
	base     string
	debounce time.Duration
	logger   *logging.Logger
	ready    chan struct{}
}

// New compiles rules. Paths are matched relative to base; an empty base
// matches paths as reported.
func New(rules []config.WatchRule, base string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	w := &Watcher{base: base, debounce: debounce, logger: logger, ready: make(chan struct{})}
	for i, r := range rules {
		cr := rule{tasks: r.Tasks}
		for _, pattern := range r.Patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return nil, errors.NewValidationError("invalid watch pattern").
					WithField(fmt.Sprintf("assets.watch[%d]", i)).WithValue(pattern).WithCause(err)
			}
			cr.globs = append(cr.globs, g)
		}
		w.rules = append(w.rules, cr)
	}
	return w, nil
}

// Ready is closed once Run has registered every directory.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Match returns the tasks mapped to path, in rule order.
func (w *Watcher) Match(path string) []string {
	rel := path
	if w.base != "" {
		if r, err := filepath.Rel(w.base, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)

	var tasks []string
	for _, r := range w.rules {
		for _, g := range r.globs {
			if g.Match(rel) {
				tasks = appendUnique(tasks, r.tasks...)
				break
			}
		}
	}
	return tasks
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, d := range dst {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, n)
		}
	}
	return dst
}

// Run watches roots recursively until ctx ends. Changes are collected for
// the debounce interval and the mapped tasks handed to onChange together.
// onChange runs on the watch goroutine.
func (w *Watcher) Run(ctx context.Context, roots []string, onChange ChangeFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	for _, root := range roots {
		if err := w.addTree(fw, root); err != nil {
			return err
		}
	}
	close(w.ready)
	w.logger.Info("watching for changes", "roots", roots)

	var (
		pending []string
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			tasks := w.Match(ev.Name)
			if len(tasks) == 0 {
				continue
			}
			w.logger.Debug("file changed", "path", ev.Name, "op", ev.Op.String(), "tasks", tasks)
			pending = appendUnique(pending, tasks...)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			batch := pending
			pending, fire = nil, nil
			w.logger.Info("running tasks for changed files", "tasks", batch)
			onChange(ctx, batch)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// addTree watches dir and every directory below it, skipping hidden
// directories and node_modules.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		return nil
	})
}
