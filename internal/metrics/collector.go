// Package metrics aggregates per-run coordination metrics and turns them into
// an advisory strategy recommendation for the next plan.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/plan"
)

// Outcome is a unit's terminal (or last observed) state at collection time.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeInProgress
	OutcomeCompleted
	OutcomeFailed
	OutcomeBlocked
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// UnitOutcome is one unit's contribution to the run metrics.
type UnitOutcome struct {
	UnitID     string
	Outcome    Outcome
	Duration   time.Duration
	Complexity float64
}

// CoordinationMetrics summarizes a completed run.
type CoordinationMetrics struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	BlockedTasks   int `json:"blocked_tasks"`
	// ParallelEfficiency is the sum of completed task durations divided by
	// the run's wall-clock span, capped at 1.0. Values near 1.0 mean workers
	// were saturated; values near 1/N mean the run was effectively serial.
	ParallelEfficiency float64 `json:"parallel_efficiency"`
	// DependencyResolutionRate is completed/total
	DependencyResolutionRate float64 `json:"dependency_resolution_rate"`
	// AverageTaskDuration is averaged over completed tasks only
	AverageTaskDuration time.Duration `json:"average_task_duration"`
	// Bottlenecks lists units that did not complete and whose complexity
	// exceeds the configured threshold
	Bottlenecks []string `json:"bottlenecks,omitempty"`
	// WallClock is the observed span of the run
	WallClock time.Duration `json:"wall_clock"`
}

// Collector computes CoordinationMetrics from unit outcomes.
type Collector struct {
	bottleneckThreshold float64
}

// NewCollector creates a Collector using the configured bottleneck complexity
// threshold. A nil config falls back to defaults.
func NewCollector(cfg *config.Config) *Collector {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Collector{bottleneckThreshold: cfg.Scheduler.BottleneckComplexityThreshold}
}

// Collect aggregates the outcomes of one run observed over the given
// wall-clock span.
func (c *Collector) Collect(outcomes []UnitOutcome, wallClock time.Duration) CoordinationMetrics {
	m := CoordinationMetrics{
		TotalTasks: len(outcomes),
		WallClock:  wallClock,
	}

	var completedDuration time.Duration
	for _, outcome := range outcomes {
		switch outcome.Outcome {
		case OutcomeCompleted:
			m.CompletedTasks++
			completedDuration += outcome.Duration
		case OutcomeFailed:
			m.FailedTasks++
		case OutcomeBlocked:
			m.BlockedTasks++
		}

		if outcome.Outcome != OutcomeCompleted && outcome.Complexity > c.bottleneckThreshold {
			m.Bottlenecks = append(m.Bottlenecks, outcome.UnitID)
		}
	}
	sort.Strings(m.Bottlenecks)

	if wallClock > 0 {
		m.ParallelEfficiency = float64(completedDuration) / float64(wallClock)
		if m.ParallelEfficiency > 1.0 {
			m.ParallelEfficiency = 1.0
		}
	}
	if m.TotalTasks > 0 {
		m.DependencyResolutionRate = float64(m.CompletedTasks) / float64(m.TotalTasks)
	}
	if m.CompletedTasks > 0 {
		m.AverageTaskDuration = completedDuration / time.Duration(m.CompletedTasks)
	}

	return m
}

// Recommendation thresholds
const (
	highEfficiencyThreshold = 0.75
	lowResolutionThreshold  = 0.5
)

// RecommendStrategy suggests a strategy for the next plan based on observed
// metrics. The recommendation is advisory; the caller decides whether to
// apply it.
func RecommendStrategy(m CoordinationMetrics) (plan.Strategy, string) {
	if m.ParallelEfficiency >= highEfficiencyThreshold {
		return plan.StrategyParallel, fmt.Sprintf(
			"parallel efficiency %.2f indicates workers stayed saturated; widen the parallel surface",
			m.ParallelEfficiency)
	}
	if m.DependencyResolutionRate < lowResolutionThreshold {
		return plan.StrategyDependencyDriven, fmt.Sprintf(
			"only %.0f%% of units completed; stricter dependency ordering should reduce blocked work",
			m.DependencyResolutionRate*100)
	}
	if len(m.Bottlenecks) > 0 {
		return plan.StrategyHybrid, fmt.Sprintf(
			"%d bottleneck units did not complete; bounded phases isolate them from independent work",
			len(m.Bottlenecks))
	}
	return plan.StrategySequential, "no pressure signals observed; sequential execution is sufficient"
}
