package taskgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const reportFileName = "last-run.json"

// TaskStatus is the outcome of one task within a run.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// TaskResult records one task execution.
type TaskResult struct {
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Duration returns how long the task ran, or zero while it is running.
func (r TaskResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report records one Runner.Run invocation. Results are in start order.
type Report struct {
	RunID      string       `json:"run_id"`
	Tasks      []string     `json:"tasks"`
	Profile    string       `json:"profile"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	Results    []TaskResult `json:"results"`
}

// Result returns the result for the named task.
func (r *Report) Result(name string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return TaskResult{}, false
}

// SaveReport writes the report to dir atomically: data goes to a temporary
// file that is renamed into place, under an exclusive file lock.
func SaveReport(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	target := filepath.Join(dir, reportFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LoadReport reads the last report saved in dir. The error matches
// fs.ErrNotExist when no run has been recorded there.
func LoadReport(dir string) (*Report, error) {
	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(filepath.Join(dir, reportFileName))
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}
