package taskgraph

import (
	"fmt"
	"sort"

	"github.com/Iron-Ham/shortkeys/internal/errors"
)

// Plan returns the prerequisite closure of names grouped into topological
// levels: every task in level N depends only on tasks in earlier levels.
// Names within a level are sorted. Plan does not run anything.
func Plan(reg *Registry, names ...string) ([][]string, error) {
	closure := make(map[string]Task)
	var collect func(name, requiredBy string) error
	collect = func(name, requiredBy string) error {
		if _, seen := closure[name]; seen {
			return nil
		}
		t, ok := reg.Get(name)
		if !ok {
			if requiredBy == "" {
				return fmt.Errorf("%w: %q", errors.ErrUnknownTask, name)
			}
			return fmt.Errorf("%w: %q (required by %q)", errors.ErrUnknownTask, name, requiredBy)
		}
		closure[name] = t
		for _, dep := range t.Prerequisites() {
			if err := collect(dep, name); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := collect(name, ""); err != nil {
			return nil, err
		}
	}

	inDegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))
	for name, t := range closure {
		seen := make(map[string]bool)
		for _, dep := range t.Prerequisites() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var level []string
	for name := range closure {
		if inDegree[name] == 0 {
			level = append(level, name)
		}
	}

	var levels [][]string
	placed := 0
	for len(level) > 0 {
		sort.Strings(level)
		levels = append(levels, level)
		placed += len(level)

		var next []string
		for _, name := range level {
			for _, d := range dependents[name] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		level = next
	}

	if placed != len(closure) {
		return nil, errors.ErrDependencyCycle
	}
	return levels, nil
}
