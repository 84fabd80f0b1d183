// Package coordinator executes an implementation plan: phases run strictly in
// order, tasks within a phase fan out through a bounded worker pool, and a
// failed task transitively blocks its dependents. The Coordinator owns all
// task state for exactly one run.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/errors"
	"github.com/gantrydev/gantry/internal/graph"
	"github.com/gantrydev/gantry/internal/logging"
	"github.com/gantrydev/gantry/internal/metrics"
	"github.com/gantrydev/gantry/internal/plan"
)

// Recovery hints attached to Failed and Blocked tasks. Advisory only; the
// coordinator never retries on its own.
const (
	HintFixDependency = "fix dependency then retry"
	HintDecompose     = "decompose into smaller units"
	HintRetry         = "retry with alternate approach"
)

// Coordinator executes plans. A Coordinator runs at most one plan at a time;
// task state is rebuilt from scratch on every Run call.
type Coordinator struct {
	cfg       *config.Config
	runner    UnitRunner
	handler   EventHandler
	logger    *logging.Logger
	collector *metrics.Collector

	mu      sync.Mutex
	running bool
	tasks   map[string]*Task
}

// NewCoordinator creates a Coordinator. A nil config falls back to defaults,
// a nil handler to NopHandler, and a nil logger discards output. The runner
// is required.
func NewCoordinator(cfg *config.Config, runner UnitRunner, handler EventHandler, logger *logging.Logger) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}
	if handler == nil {
		handler = NopHandler{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		cfg:       cfg,
		runner:    runner,
		handler:   handler,
		logger:    logger,
		collector: metrics.NewCollector(cfg),
	}
}

// Run executes the plan's phases in order and returns the per-task outcome
// plus run metrics. Work function failures never surface as a Run error:
// they are recorded on their tasks and drive Blocked propagation. Run
// returns an error only for invalid input, a concurrent Run call, or
// context cancellation; on cancellation the partial result is returned
// alongside the error with undispatched tasks marked Failed.
func (c *Coordinator) Run(ctx context.Context, p *plan.ImplementationPlan, g *graph.DependencyGraph) (*RunResult, error) {
	if c.runner == nil {
		return nil, errors.NewValidationError("runner is required").WithField("runner")
	}
	if p == nil {
		return nil, errors.NewValidationError("plan is required").WithField("plan")
	}
	if g == nil {
		return nil, errors.NewValidationError("graph is required").WithField("graph")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, errors.ErrRunInProgress
	}
	c.running = true
	c.tasks = buildTasks(p, g)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	runID := uuid.New().String()
	logger := c.logger.WithRun(runID)
	logger.Info("run started",
		"plan_id", p.ID,
		"strategy", p.Strategy.String(),
		"units", len(p.Units),
		"phases", len(p.Phases),
	)

	startedAt := time.Now()
	var runErr error

	for phaseIdx, phase := range p.Phases {
		if err := ctx.Err(); err != nil {
			c.cancelRemaining(err)
			runErr = errors.Wrap(errors.ErrCanceled, "run canceled")
			break
		}
		c.runPhase(ctx, phaseIdx, phase, logger.WithPhase(phaseIdx))
		c.handler.OnPhaseCompleted(phaseIdx, len(p.Phases))
	}
	if runErr == nil {
		if err := ctx.Err(); err != nil {
			c.cancelRemaining(err)
			runErr = errors.Wrap(errors.ErrCanceled, "run canceled")
		}
	}

	result := c.buildResult(runID, p, startedAt)
	c.handler.OnRunCompleted(result)
	logger.Info("run completed",
		"completed", result.Metrics.CompletedTasks,
		"failed", result.Metrics.FailedTasks,
		"blocked", result.Metrics.BlockedTasks,
		"duration", result.Duration().String(),
	)
	return result, runErr
}

// buildTasks creates the per-run task registry from the plan's phases.
// Priority is derived from graph shape only: units with more transitive
// dependents dispatch first, lighter units break ties.
func buildTasks(p *plan.ImplementationPlan, g *graph.DependencyGraph) map[string]*Task {
	tasks := make(map[string]*Task, len(p.Units))
	for phaseIdx, phase := range p.Phases {
		for _, unitID := range phase {
			task := &Task{
				UnitID: unitID,
				Phase:  phaseIdx,
				State:  TaskPending,
			}
			if unit, ok := g.Units[unitID]; ok {
				for _, depID := range unit.Dependencies {
					if _, resolved := g.Units[depID]; resolved {
						task.Dependencies = append(task.Dependencies, depID)
					}
				}
				task.Complexity = unit.Complexity
			}
			dependents := g.TransitiveDependents(unitID)
			for id := range dependents {
				task.Dependents = append(task.Dependents, id)
			}
			sort.Strings(task.Dependents)
			task.Priority = len(dependents)*10 - int(task.Complexity)
			tasks[unitID] = task
		}
	}
	return tasks
}

// runPhase dispatches a phase's runnable tasks and blocks until all of them
// reach a terminal state. Blocked tasks are skipped, never dispatched.
//
// A phase whose units depend on each other (a sequential plan's single
// phase, or the trailing cyclic phase) runs serially in phase order: a unit
// must never start while a dependency in the same phase is still running,
// and a failure there has to block its phase-mates before they dispatch.
func (c *Coordinator) runPhase(ctx context.Context, phaseIdx int, phase []string, logger *logging.Logger) {
	runnable := c.runnableTasks(phase)
	if len(runnable) == 0 {
		return
	}
	logger.Debug("phase dispatch", "runnable", len(runnable), "phase_size", len(phase))

	if c.hasIntraPhaseEdges(phase) {
		for _, unitID := range phase {
			if ctx.Err() != nil {
				return
			}
			c.executeTask(ctx, unitID, logger)
		}
		return
	}

	if len(runnable) == 1 {
		c.executeTask(ctx, runnable[0], logger)
		return
	}

	workers := c.cfg.Scheduler.MaxParallelTasks
	if len(runnable) < workers {
		workers = len(runnable)
	}

	p := pool.New().WithMaxGoroutines(workers)
	for _, unitID := range runnable {
		p.Go(func() {
			c.executeTask(ctx, unitID, logger)
		})
	}
	p.Wait()
}

// hasIntraPhaseEdges reports whether any unit in the phase depends on
// another unit of the same phase.
func (c *Coordinator) hasIntraPhaseEdges(phase []string) bool {
	members := make(map[string]bool, len(phase))
	for _, unitID := range phase {
		members[unitID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unitID := range phase {
		task, ok := c.tasks[unitID]
		if !ok {
			continue
		}
		for _, depID := range task.Dependencies {
			if members[depID] {
				return true
			}
		}
	}
	return false
}

// runnableTasks returns the phase's Pending unit ids in priority order.
func (c *Coordinator) runnableTasks(phase []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var runnable []string
	for _, unitID := range phase {
		if task, ok := c.tasks[unitID]; ok && task.State == TaskPending {
			runnable = append(runnable, unitID)
		}
	}
	sort.Slice(runnable, func(i, j int) bool {
		a, b := c.tasks[runnable[i]], c.tasks[runnable[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.UnitID < b.UnitID
	})
	return runnable
}

// executeTask runs one unit's work function and applies the resulting state
// transition.
func (c *Coordinator) executeTask(ctx context.Context, unitID string, logger *logging.Logger) {
	snapshot, ok := c.markStarted(unitID)
	if !ok {
		return
	}
	c.handler.OnTaskStarted(snapshot)
	logger.Debug("task started", "unit_id", unitID)

	taskCtx := ctx
	timeout := c.cfg.Scheduler.TaskTimeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := c.runner.RunUnit(taskCtx, &snapshot)
	if err == nil && taskCtx.Err() == context.DeadlineExceeded {
		err = taskCtx.Err()
	}

	if err != nil {
		if timeout > 0 && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			err = errors.NewTimeoutError("running unit "+unitID, timeout)
		} else {
			err = errors.NewTaskExecutionError("work function failed", err).
				WithUnitID(unitID).
				WithPhase(snapshot.Phase)
		}
		c.markFailed(unitID, err)
		logger.Warn("task failed", "unit_id", unitID, "error", err.Error())
		return
	}

	c.markCompleted(unitID)
	logger.Debug("task completed", "unit_id", unitID)
}

// markStarted transitions a task to InProgress. Returns false when the task
// was blocked or otherwise moved out of Pending before dispatch.
func (c *Coordinator) markStarted(unitID string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[unitID]
	if !ok || task.State != TaskPending {
		return Task{}, false
	}
	task.State = TaskInProgress
	task.StartedAt = time.Now()
	return *task, true
}

func (c *Coordinator) markCompleted(unitID string) {
	c.mu.Lock()
	task := c.tasks[unitID]
	task.State = TaskCompleted
	task.CompletedAt = time.Now()
	snapshot := *task
	c.mu.Unlock()

	c.handler.OnTaskCompleted(snapshot)
}

// markFailed records the failure and blocks every transitive dependent that
// has not been dispatched yet. The whole transition, including propagation,
// happens under the single state lock.
func (c *Coordinator) markFailed(unitID string, err error) {
	c.mu.Lock()
	task := c.tasks[unitID]
	task.State = TaskFailed
	task.CompletedAt = time.Now()
	task.Err = err
	task.RecoveryHint = c.recoveryHint(err, task.Complexity)
	failedSnapshot := *task

	var blockedSnapshots []Task
	for _, depID := range task.Dependents {
		dependent, ok := c.tasks[depID]
		if !ok || dependent.State != TaskPending {
			continue
		}
		dependent.State = TaskBlocked
		dependent.CompletedAt = time.Now()
		dependent.BlockedBy = unitID
		dependent.Err = errors.Wrapf(errors.ErrTaskBlocked, "dependency %s failed", unitID)
		dependent.RecoveryHint = HintFixDependency
		blockedSnapshots = append(blockedSnapshots, *dependent)
	}
	c.mu.Unlock()

	c.handler.OnTaskFailed(failedSnapshot)
	for _, snapshot := range blockedSnapshots {
		c.handler.OnTaskBlocked(snapshot)
	}
}

// recoveryHint picks the advisory recovery text for a failed task.
func (c *Coordinator) recoveryHint(err error, complexity float64) string {
	if errors.IsDependencyError(err) {
		return HintFixDependency
	}
	if complexity > c.cfg.Scheduler.BottleneckComplexityThreshold {
		return HintDecompose
	}
	return HintRetry
}

// cancelRemaining marks every undispatched task Failed with a cancellation
// error so the result accounts for all units.
func (c *Coordinator) cancelRemaining(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, task := range c.tasks {
		if task.State != TaskPending {
			continue
		}
		task.State = TaskFailed
		task.CompletedAt = now
		task.Err = errors.Wrap(errors.ErrCanceled, cause.Error())
		task.RecoveryHint = HintRetry
	}
}

// buildResult snapshots final task state and aggregates run metrics.
func (c *Coordinator) buildResult(runID string, p *plan.ImplementationPlan, startedAt time.Time) *RunResult {
	completedAt := time.Now()

	c.mu.Lock()
	tasks := make(map[string]*Task, len(c.tasks))
	outcomes := make([]metrics.UnitOutcome, 0, len(c.tasks))
	for unitID, task := range c.tasks {
		snapshot := *task
		tasks[unitID] = &snapshot
		outcomes = append(outcomes, metrics.UnitOutcome{
			UnitID:     unitID,
			Outcome:    taskOutcome(task.State),
			Duration:   task.Duration(),
			Complexity: task.Complexity,
		})
	}
	c.mu.Unlock()

	return &RunResult{
		RunID:       runID,
		PlanID:      p.ID,
		Strategy:    p.Strategy,
		Tasks:       tasks,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Metrics:     c.collector.Collect(outcomes, completedAt.Sub(startedAt)),
	}
}

func taskOutcome(state TaskState) metrics.Outcome {
	switch state {
	case TaskCompleted:
		return metrics.OutcomeCompleted
	case TaskFailed:
		return metrics.OutcomeFailed
	case TaskBlocked:
		return metrics.OutcomeBlocked
	case TaskInProgress:
		return metrics.OutcomeInProgress
	default:
		return metrics.OutcomePending
	}
}
