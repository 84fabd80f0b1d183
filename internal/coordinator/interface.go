package coordinator

import (
	"context"
	"time"

	"github.com/gantrydev/gantry/internal/metrics"
	"github.com/gantrydev/gantry/internal/plan"
)

// TaskState represents a task's position in its lifecycle.
type TaskState int

const (
	// TaskPending means the task has not been dispatched yet
	TaskPending TaskState = iota
	// TaskInProgress means the task's work function is running
	TaskInProgress
	// TaskCompleted means the work function returned success
	TaskCompleted
	// TaskFailed means the work function returned an error or timed out
	TaskFailed
	// TaskBlocked means a dependency failed before this task could run.
	// Blocked is terminal for the run; blocked tasks are never dispatched.
	TaskBlocked
)

// String returns a human-readable state name.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can occur from this state.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// Task tracks the execution of a single unit within a run.
type Task struct {
	// UnitID is the unit this task executes
	UnitID string `json:"unit_id"`
	// Phase is the index of the plan phase this task belongs to
	Phase int `json:"phase"`
	// Dependencies are the unit's resolved dependency ids
	Dependencies []string `json:"dependencies,omitempty"`
	// Dependents are the units that depend on this one, transitively
	Dependents []string `json:"dependents,omitempty"`
	// Complexity is the unit's weight, carried from the graph
	Complexity float64 `json:"complexity"`
	// Priority orders dispatch within a phase. It is recomputed from graph
	// shape on every run and never persisted.
	Priority int `json:"priority"`
	// State is the task's current lifecycle state
	State TaskState `json:"state"`
	// StartedAt is set when the task enters InProgress
	StartedAt time.Time `json:"started_at,omitzero"`
	// CompletedAt is set when the task reaches a terminal state
	CompletedAt time.Time `json:"completed_at,omitzero"`
	// Err holds the failure cause for Failed tasks
	Err error `json:"-"`
	// BlockedBy names the failed dependency for Blocked tasks
	BlockedBy string `json:"blocked_by,omitempty"`
	// RecoveryHint is advisory text suggesting how to recover a Failed or
	// Blocked task
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

// Duration returns the task's execution time, zero until it has both started
// and reached a terminal state.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// RunResult is the outcome of executing a plan.
type RunResult struct {
	// RunID uniquely identifies this run
	RunID string `json:"run_id"`
	// PlanID is the executed plan's id
	PlanID string `json:"plan_id"`
	// Strategy is the executed plan's strategy
	Strategy plan.Strategy `json:"strategy"`
	// Tasks maps unit id to its final task record
	Tasks map[string]*Task `json:"tasks"`
	// StartedAt and CompletedAt bound the run's wall-clock span
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	// Metrics summarizes the run
	Metrics metrics.CoordinationMetrics `json:"metrics"`
}

// Duration returns the run's wall-clock span.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Succeeded evaluates the run against the plan's success criteria.
func (r *RunResult) Succeeded(criteria plan.SuccessCriteria) bool {
	if r.Metrics.TotalTasks == 0 {
		return true
	}
	completionRate := float64(r.Metrics.CompletedTasks) / float64(r.Metrics.TotalTasks)
	if completionRate < criteria.MinCompletionRate {
		return false
	}
	if r.Metrics.FailedTasks > criteria.MaxFailedUnits {
		return false
	}
	return r.Metrics.DependencyResolutionRate >= criteria.MinDependencyResolutionRate
}

// UnitRunner executes the work for a single unit. Implementations must honor
// ctx cancellation; the coordinator treats a deadline-exceeded ctx as a task
// timeout. The task argument is a snapshot; mutations are not observed.
type UnitRunner interface {
	RunUnit(ctx context.Context, task *Task) error
}

// RunnerFunc adapts a function to the UnitRunner interface.
type RunnerFunc func(ctx context.Context, task *Task) error

// RunUnit implements UnitRunner.
func (f RunnerFunc) RunUnit(ctx context.Context, task *Task) error {
	return f(ctx, task)
}

// EventHandler receives lifecycle callbacks during a run. Callbacks are
// invoked synchronously with task snapshots; implementations must not block
// for long. Callbacks for different tasks may arrive from different
// goroutines.
type EventHandler interface {
	OnTaskStarted(task Task)
	OnTaskCompleted(task Task)
	OnTaskFailed(task Task)
	OnTaskBlocked(task Task)
	OnPhaseCompleted(phase int, total int)
	OnRunCompleted(result *RunResult)
}

// NopHandler is an EventHandler that ignores all events.
type NopHandler struct{}

func (NopHandler) OnTaskStarted(Task)        {}
func (NopHandler) OnTaskCompleted(Task)      {}
func (NopHandler) OnTaskFailed(Task)         {}
func (NopHandler) OnTaskBlocked(Task)        {}
func (NopHandler) OnPhaseCompleted(int, int) {}
func (NopHandler) OnRunCompleted(*RunResult) {}
