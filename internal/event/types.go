// Package event provides a synchronous pub-sub bus and the events the task
// runner and the favorites migration publish. The CLI progress view and the
// run logger subscribe to them.
package event

import "time"

// Event types
const (
	TypeTaskStarted         = "task.started"
	TypeTaskFinished        = "task.finished"
	TypeTaskFailed          = "task.failed"
	TypeRunFinished         = "run.finished"
	TypeFavoriteIncremented = "favorite.incremented"
)

// Event is implemented by everything published on a Bus.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// TaskStartedEvent is published when a task begins running its prerequisites.
type TaskStartedEvent struct {
	baseEvent
	RunID string
	Task  string
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func NewTaskStartedEvent(runID, task string) TaskStartedEvent {
	return TaskStartedEvent{baseEvent: newBaseEvent(TypeTaskStarted), RunID: runID, Task: task}
}

// TaskFinishedEvent is published when a task and its prerequisites succeeded.
type TaskFinishedEvent struct {
	baseEvent
	RunID    string
	Task     string
	Duration time.Duration
}

// NewTaskFinishedEvent creates a TaskFinishedEvent.
func NewTaskFinishedEvent(runID, task string, d time.Duration) TaskFinishedEvent {
	return TaskFinishedEvent{baseEvent: newBaseEvent(TypeTaskFinished), RunID: runID, Task: task, Duration: d}
}

// TaskFailedEvent is published when a task fails, including when one of its
// prerequisites failed.
type TaskFailedEvent struct {
	baseEvent
	RunID    string
	Task     string
	Err      error
	Duration time.Duration
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(runID, task string, err error, d time.Duration) TaskFailedEvent {
	return TaskFailedEvent{baseEvent: newBaseEvent(TypeTaskFailed), RunID: runID, Task: task, Err: err, Duration: d}
}

// RunFinishedEvent is published once per runner invocation.
type RunFinishedEvent struct {
	baseEvent
	RunID   string
	Tasks   []string
	Success bool
	Err     error
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(runID string, tasks []string, err error) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent: newBaseEvent(TypeRunFinished),
		RunID:     runID,
		Tasks:     tasks,
		Success:   err == nil,
		Err:       err,
	}
}

// FavoriteIncrementedEvent is published by the favorites migration for each
// counter write.
type FavoriteIncrementedEvent struct {
	baseEvent
	ShortcutID string
	UserID     string
	Err        error
}

// NewFavoriteIncrementedEvent creates a FavoriteIncrementedEvent. err is the
// write failure, if any.
func NewFavoriteIncrementedEvent(shortcutID, userID string, err error) FavoriteIncrementedEvent {
	return FavoriteIncrementedEvent{
		baseEvent:  newBaseEvent(TypeFavoriteIncremented),
		ShortcutID: shortcutID,
		UserID:     userID,
		Err:        err,
	}
}
