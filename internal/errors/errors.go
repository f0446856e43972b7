// Package errors provides the error types shared across shortkeys: sentinel
// errors for the task runner, the store and the HTTP layer, typed errors that
// carry context (task name, collection, document id), and classification
// helpers used by the CLI to decide what to print.
//
// Creating errors:
//
//	err := errors.NewTaskError("lint", errors.ErrTaskFailed).WithStep(2)
//	err := errors.NewStoreError("save shortcut", cause).WithCollection("shortcuts").WithDocument(id)
//	err := errors.NewNotFoundError("user", "username")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrUnknownTask) { ... }
//
//	var taskErr *errors.TaskError
//	if errors.As(err, &taskErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only need this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Task runner sentinel errors
var (
	// ErrUnknownTask indicates a task name that is not registered.
	ErrUnknownTask = New("unknown task")
	// ErrDependencyCycle indicates a task that reaches itself through its prerequisites.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrTaskFailed indicates that a task or one of its prerequisites failed.
	ErrTaskFailed = New("task failed")
	// ErrToolFailed indicates that an external tool exited unsuccessfully.
	ErrToolFailed = New("tool failed")
)

// Store sentinel errors
var (
	// ErrNoStore indicates a task needs the data store but no task opened it.
	ErrNoStore = New("data store not connected")
	// ErrDocumentNotFound indicates a document lookup matched nothing.
	ErrDocumentNotFound = New("document not found")
	// ErrDuplicateKey indicates a unique index violation.
	ErrDuplicateKey = New("duplicate key")
)

// HTTP and auth sentinel errors
var (
	// ErrInvalidCredentials indicates a username/password pair that does not match.
	ErrInvalidCredentials = New("invalid username or password")
	// ErrNoSession indicates a request without a valid session cookie.
	ErrNoSession = New("no valid session")
)

// General sentinel errors
var (
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
)

// ShortkeysError is implemented by every typed error in this package.
type ShortkeysError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "kind [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.message == "" {
		if e.cause != nil {
			return fmt.Sprintf("%s: %v", prefix, e.cause)
		}
		return prefix
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// TaskError is returned by the runner when a task fails. It always matches
// ErrTaskFailed in addition to its cause.
//
//	err := errors.NewTaskError("build", cause).WithStep(1)
//	fmt.Println(err) // "task error [task=build, step=1]: task failed: <cause>"
type TaskError struct {
	baseError
	Task string
	// Step is the zero-based index of the failing prerequisite step, or -1
	// when the task body itself failed.
	Step int
}

// NewTaskError creates a TaskError for the named task.
func NewTaskError(task string, cause error) *TaskError {
	return &TaskError{
		baseError: baseError{
			message:    ErrTaskFailed.Error(),
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Task: task,
		Step: -1,
	}
}

// WithStep records which prerequisite step failed.
func (e *TaskError) WithStep(step int) *TaskError {
	e.Step = step
	return e
}

func (e *TaskError) Error() string {
	parts := []string{"task=" + e.Task}
	if e.Step >= 0 {
		parts = append(parts, fmt.Sprintf("step=%d", e.Step))
	}
	return e.format("task error", parts)
}

func (e *TaskError) Is(target error) bool {
	if _, ok := target.(*TaskError); ok {
		return true
	}
	if target == ErrTaskFailed {
		return true
	}
	return e.baseError.Is(target)
}

// StoreError represents a data store failure.
type StoreError struct {
	baseError
	Collection string
	DocumentID string
}

// NewStoreError creates a StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithCollection records the collection the operation targeted.
func (e *StoreError) WithCollection(name string) *StoreError {
	e.Collection = name
	return e
}

// WithDocument records the id of the document involved.
func (e *StoreError) WithDocument(id string) *StoreError {
	e.DocumentID = id
	return e
}

func (e *StoreError) Error() string {
	var parts []string
	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}
	if e.DocumentID != "" {
		parts = append(parts, "id="+e.DocumentID)
	}
	return e.format("store error", parts)
}

func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError. It matches ErrDocumentNotFound.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrDocumentNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// IsUserFacing reports whether the error message is safe to print as-is.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var se ShortkeysError
	if As(err, &se) {
		return se.IsUserFacing()
	}
	return Is(err, ErrUnknownTask) || Is(err, ErrDependencyCycle) || Is(err, ErrInvalidCredentials)
}

// FailedTask returns the innermost task named in err's TaskError chain.
// The runner wraps prerequisite failures in the dependent's TaskError, so
// the innermost one names the task that actually broke.
func FailedTask(err error) (string, bool) {
	var name string
	found := false
	for err != nil {
		var te *TaskError
		if !As(err, &te) {
			break
		}
		name, found = te.Task, true
		err = te.cause
	}
	return name, found
}

// Wrap wraps an error with a context message. Returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
