// Package errors provides centralized error definitions and error handling
// utilities for the Gantry codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - GraphError: errors raised while building a dependency graph
//   - PlanError: errors raised while turning a graph into a plan
//   - TaskExecutionError: a work function failed, with task context attached
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//   - TimeoutError: a task exceeded its allotted time
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewGraphError("duplicate unit id", errors.ErrDuplicateUnit).WithUnitID("api")
//	err := errors.NewTaskExecutionError("work function failed", cause).WithUnitID("db").WithPhase(2)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrUnresolvedDependency) { ... }
//
//	var taskErr *errors.TaskExecutionError
//	if errors.As(err, &taskErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
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
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
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

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Graph-related sentinel errors
var (
	// ErrDuplicateUnit indicates that two units share the same id.
	ErrDuplicateUnit = New("duplicate unit id")
	// ErrUnresolvedDependency indicates a dependency on a unit that does not exist.
	ErrUnresolvedDependency = New("unresolved dependency")
	// ErrCycleDetected indicates a circular dependency between units.
	ErrCycleDetected = New("dependency cycle detected")
	// ErrUnitNotFound indicates that a unit could not be found in the graph.
	ErrUnitNotFound = New("unit not found")
)

// Plan- and execution-related sentinel errors
var (
	// ErrPlanInvalid indicates that a plan cannot be executed as given.
	ErrPlanInvalid = New("plan is invalid")
	// ErrTaskFailed indicates that a task's work function failed.
	ErrTaskFailed = New("task failed")
	// ErrTaskBlocked indicates that a task was blocked by a failed dependency.
	ErrTaskBlocked = New("task blocked by failed dependency")
	// ErrRunInProgress indicates that a coordinator is already executing a run.
	ErrRunInProgress = New("run already in progress")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GantryError is the base interface for all Gantry errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type GantryError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GraphError represents errors raised while building a dependency graph.
// Graph errors are fatal: a graph that fails to build is never planned or run.
//
// Example:
//
//	err := errors.NewGraphError("duplicate unit id", errors.ErrDuplicateUnit)
//	err = err.WithUnitID("api")
type GraphError struct {
	baseError
	UnitID       string
	DependencyID string
}

// NewGraphError creates a new GraphError.
func NewGraphError(message string, cause error) *GraphError {
	return &GraphError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithUnitID adds a unit id to the error context.
func (e *GraphError) WithUnitID(id string) *GraphError {
	e.UnitID = id
	return e
}

// WithDependencyID adds the offending dependency id to the error context.
func (e *GraphError) WithDependencyID(id string) *GraphError {
	e.DependencyID = id
	return e
}

// Error returns the formatted error message.
func (e *GraphError) Error() string {
	var parts []string
	if e.UnitID != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.UnitID))
	}
	if e.DependencyID != "" {
		parts = append(parts, fmt.Sprintf("dependency=%s", e.DependencyID))
	}

	prefix := "graph error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("graph error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GraphError) Is(target error) bool {
	if _, ok := target.(*GraphError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PlanError represents errors raised while turning a graph into a plan.
//
// Example:
//
//	err := errors.NewPlanError("graph has unresolved dependencies", errors.ErrUnresolvedDependency)
//	err = err.WithStrategy("dependency_driven")
type PlanError struct {
	baseError
	Strategy string
}

// NewPlanError creates a new PlanError.
func NewPlanError(message string, cause error) *PlanError {
	return &PlanError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithStrategy adds the strategy name to the error context.
func (e *PlanError) WithStrategy(strategy string) *PlanError {
	e.Strategy = strategy
	return e
}

// Error returns the formatted error message.
func (e *PlanError) Error() string {
	prefix := "plan error"
	if e.Strategy != "" {
		prefix = fmt.Sprintf("plan error [strategy=%s]", e.Strategy)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PlanError) Is(target error) bool {
	if _, ok := target.(*PlanError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TaskExecutionError wraps a work function's failure with task context.
// These errors are recorded on the task and drive blocked-propagation; they
// never unwind through the coordinator's call stack.
//
// Example:
//
//	err := errors.NewTaskExecutionError("work function failed", cause)
//	err = err.WithUnitID("db").WithPhase(2)
type TaskExecutionError struct {
	baseError
	UnitID string
	Phase  int
}

// NewTaskExecutionError creates a new TaskExecutionError.
func NewTaskExecutionError(message string, cause error) *TaskExecutionError {
	return &TaskExecutionError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Phase: -1, // -1 indicates not set
	}
}

// WithUnitID adds a unit id to the error context.
func (e *TaskExecutionError) WithUnitID(id string) *TaskExecutionError {
	e.UnitID = id
	return e
}

// WithPhase adds the phase index to the error context.
func (e *TaskExecutionError) WithPhase(phase int) *TaskExecutionError {
	e.Phase = phase
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TaskExecutionError) WithRetryable(r bool) *TaskExecutionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TaskExecutionError) Error() string {
	var parts []string
	if e.UnitID != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.UnitID))
	}
	if e.Phase >= 0 {
		parts = append(parts, fmt.Sprintf("phase=%d", e.Phase))
	}

	prefix := "task error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("task error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TaskExecutionError) Is(target error) bool {
	if _, ok := target.(*TaskExecutionError); ok {
		return true
	}
	if errors.Is(target, ErrTaskFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("max parallel tasks must be positive")
//	err = err.WithField("max_parallel_tasks").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
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

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents a task that exceeded its allotted time.
// Timeouts are treated as task failures and are retryable by default.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for unit work to finish", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for unit work to finish (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true, // Timeouts are generally retryable
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing GantryError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var gantryErr GantryError
	if As(err, &gantryErr) {
		return gantryErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement GantryError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var gantryErr GantryError
	if As(err, &gantryErr) {
		return gantryErr.Severity()
	}

	return SeverityError
}

// IsDependencyError returns true if the error stems from dependency
// resolution rather than the unit's own work. The coordinator uses this to
// pick a recovery hint for failed tasks.
func IsDependencyError(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrUnresolvedDependency) || Is(err, ErrTaskBlocked) || Is(err, ErrCycleDetected)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to build graph")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to schedule unit %s", unitID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
