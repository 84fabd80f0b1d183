package plan

import (
	"fmt"
	"math"
	"time"
)

// Strategy selects how units are arranged into execution phases.
type Strategy string

const (
	// StrategySequential places all units in a single phase, ordered by level
	StrategySequential Strategy = "sequential"
	// StrategyParallel extracts maximal mutually-independent groups across
	// the whole graph
	StrategyParallel Strategy = "parallel"
	// StrategyHybrid builds level phases, then splits oversized phases to the
	// configured parallelism bound
	StrategyHybrid Strategy = "hybrid"
	// StrategyDependencyDriven builds one phase per topological level
	StrategyDependencyDriven Strategy = "dependency_driven"
)

// String returns the strategy's configuration name.
func (s Strategy) String() string {
	return string(s)
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyHybrid, StrategyDependencyDriven:
		return true
	}
	return false
}

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}

// SuccessCriteria defines when a run of the plan counts as successful.
type SuccessCriteria struct {
	// MinCompletionRate is the fraction of units that must complete
	MinCompletionRate float64 `json:"min_completion_rate"`
	// MaxFailedUnits is the number of failures tolerated before the run is
	// considered unsuccessful
	MaxFailedUnits int `json:"max_failed_units"`
	// TimeLimitMultiplier scales the estimated duration into a time budget
	TimeLimitMultiplier float64 `json:"time_limit_multiplier"`
	// MinDependencyResolutionRate is the minimum acceptable fraction of
	// dependency edges satisfied by a completed dependency
	MinDependencyResolutionRate float64 `json:"min_dependency_resolution_rate"`
}

// NewSuccessCriteria returns the fixed success criteria for a plan over the
// given number of units: completion >= 95%, tolerated failures 10% of units
// (at least 1), time budget 1.5x the estimate, dependency resolution >= 90%.
func NewSuccessCriteria(unitCount int) SuccessCriteria {
	maxFailed := int(math.Round(0.10 * float64(unitCount)))
	if maxFailed < 1 {
		maxFailed = 1
	}
	return SuccessCriteria{
		MinCompletionRate:           0.95,
		MaxFailedUnits:              maxFailed,
		TimeLimitMultiplier:         1.5,
		MinDependencyResolutionRate: 0.9,
	}
}

// ImplementationPlan is a serializable execution plan over a dependency graph.
type ImplementationPlan struct {
	// ID uniquely identifies this plan
	ID string `json:"id"`
	// Strategy used to build the phases
	Strategy Strategy `json:"strategy"`
	// Units lists all planned unit ids, sorted
	Units []string `json:"units"`
	// Phases are executed strictly in order; units within a phase may run
	// concurrently. Concatenating all phases yields a valid linearization of
	// the leveled units.
	Phases [][]string `json:"phases"`
	// ParallelGroups lists sets of units with no dependency chain between any
	// two members, in phase order. Advisory.
	ParallelGroups [][]string `json:"parallel_groups,omitempty"`
	// CriticalPath is the most expensive dependency chain in the graph, from
	// deepest dependency to final dependent. Cyclic units are excluded.
	CriticalPath []string `json:"critical_path,omitempty"`
	// EstimatedDuration is the modeled wall-clock cost of the plan
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Criteria defines what a successful run of this plan looks like
	Criteria SuccessCriteria `json:"criteria"`
	// Warnings lists non-fatal conditions found during planning (cycles,
	// unresolved dependencies)
	Warnings []string `json:"warnings,omitempty"`
	// CreatedAt is when the plan was built
	CreatedAt time.Time `json:"created_at"`
}

// TimeBudget returns the wall-clock budget implied by the estimate and the
// time-limit multiplier.
func (p *ImplementationPlan) TimeBudget() time.Duration {
	return time.Duration(float64(p.EstimatedDuration) * p.Criteria.TimeLimitMultiplier)
}

// PhaseCount returns the number of phases in the plan.
func (p *ImplementationPlan) PhaseCount() int {
	return len(p.Phases)
}
