// Package plan turns a dependency graph into an executable ImplementationPlan:
// ordered phases, advisory parallel groups, a critical path, a duration
// estimate, and fixed success criteria.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/errors"
	"github.com/gantrydev/gantry/internal/graph"
	"github.com/gantrydev/gantry/internal/logging"
)

// Planner builds implementation plans from dependency graphs.
type Planner struct {
	cfg    *config.Config
	logger *logging.Logger
}

// NewPlanner creates a Planner. A nil config falls back to defaults and a nil
// logger discards output.
func NewPlanner(cfg *config.Config, logger *logging.Logger) *Planner {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Planner{cfg: cfg, logger: logger}
}

// CreatePlan builds an ImplementationPlan over the graph using the given
// strategy.
//
// Unresolved dependencies fail plan creation unless the configuration allows
// them, in which case they become a warning. Cycles never fail planning:
// cyclic units land in a trailing phase with a warning, and are excluded from
// leveling-derived ordering and from the critical path.
func (p *Planner) CreatePlan(g *graph.DependencyGraph, strategy Strategy) (*ImplementationPlan, error) {
	if g == nil {
		return nil, errors.NewPlanError("graph is nil", errors.ErrPlanInvalid)
	}
	if !strategy.Valid() {
		return nil, errors.NewPlanError(fmt.Sprintf("unknown strategy %q", strategy), errors.ErrPlanInvalid)
	}

	var warnings []string
	if len(g.Unresolved) > 0 {
		if !p.cfg.Graph.AllowUnresolved {
			first := g.Unresolved[0]
			return nil, errors.NewPlanError(
				fmt.Sprintf("graph has %d unresolved dependencies (first: %s -> %s)",
					len(g.Unresolved), first.UnitID, first.DependencyID),
				errors.ErrUnresolvedDependency).
				WithStrategy(strategy.String())
		}
		warnings = append(warnings, fmt.Sprintf("%d unresolved dependencies ignored", len(g.Unresolved)))
	}
	if g.HasCycles() {
		warnings = append(warnings, fmt.Sprintf(
			"%d units are on or behind a dependency cycle and were placed in a trailing phase: %v",
			len(g.Unleveled), g.Unleveled))
	}

	phases := p.buildPhases(g, strategy)
	plan := &ImplementationPlan{
		ID:                uuid.New().String(),
		Strategy:          strategy,
		Units:             g.UnitIDs(),
		Phases:            phases,
		ParallelGroups:    parallelGroups(g, phases),
		CriticalPath:      criticalPath(g, p.cfg.Duration),
		EstimatedDuration: p.estimateDuration(g, strategy),
		Criteria:          NewSuccessCriteria(len(g.Units)),
		Warnings:          warnings,
		CreatedAt:         time.Now(),
	}

	p.logger.Info("plan created",
		"plan_id", plan.ID,
		"strategy", strategy.String(),
		"units", len(plan.Units),
		"phases", len(plan.Phases),
		"estimated_duration", plan.EstimatedDuration.String(),
	)
	return plan, nil
}

// buildPhases arranges the graph's units into phases per the strategy. Cyclic
// units always form a trailing phase.
func (p *Planner) buildPhases(g *graph.DependencyGraph, strategy Strategy) [][]string {
	levels := levelPhases(g)

	var phases [][]string
	switch strategy {
	case StrategySequential:
		// One phase, every leveled unit, ordered so the phase itself is a
		// valid linearization.
		var all []string
		for _, phase := range levels {
			all = append(all, phase...)
		}
		if len(all) > 0 {
			phases = [][]string{all}
		}
	case StrategyDependencyDriven:
		phases = levels
	case StrategyHybrid:
		phases = splitPhases(levels, p.cfg.Scheduler.MaxParallelTasks)
	case StrategyParallel:
		phases = independentGroups(g, levels)
	}

	if len(g.Unleveled) > 0 {
		phases = append(phases, append([]string(nil), g.Unleveled...))
	}
	return phases
}

// levelPhases returns one sorted phase per topological level, ascending.
func levelPhases(g *graph.DependencyGraph) [][]string {
	byLevel := make(map[int][]string)
	maxLevel := -1
	for id, level := range g.Levels {
		byLevel[level] = append(byLevel[level], id)
		if level > maxLevel {
			maxLevel = level
		}
	}

	var phases [][]string
	for level := 0; level <= maxLevel; level++ {
		phase := byLevel[level]
		sort.Strings(phase)
		phases = append(phases, phase)
	}
	return phases
}

// splitPhases chunks any phase larger than maxSize into sub-phases of at most
// maxSize units, preserving order.
func splitPhases(phases [][]string, maxSize int) [][]string {
	if maxSize < 1 {
		maxSize = 1
	}
	var result [][]string
	for _, phase := range phases {
		for len(phase) > maxSize {
			result = append(result, phase[:maxSize])
			phase = phase[maxSize:]
		}
		if len(phase) > 0 {
			result = append(result, phase)
		}
	}
	return result
}

// independentGroups greedily packs leveled units into maximal groups with no
// dependency chain between any two members, visiting units in level order so
// every unit lands in a group after all of its dependencies.
func independentGroups(g *graph.DependencyGraph, levels [][]string) [][]string {
	var groups [][]string
	groupOf := make(map[string]int)

	for _, phase := range levels {
		for _, id := range phase {
			minIdx := 0
			for depID := range g.TransitiveDependencies(id) {
				if idx, ok := groupOf[depID]; ok && idx >= minIdx {
					minIdx = idx + 1
				}
			}

			placed := false
			for i := minIdx; i < len(groups); i++ {
				if independentOfAll(g, id, groups[i]) {
					groups[i] = append(groups[i], id)
					groupOf[id] = i
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, []string{id})
				groupOf[id] = len(groups) - 1
			}
		}
	}
	return groups
}

func independentOfAll(g *graph.DependencyGraph, id string, members []string) bool {
	for _, member := range members {
		if g.InDependencyChain(id, member) {
			return false
		}
	}
	return true
}

// parallelGroups partitions each phase into sets of units with no dependency
// chain between any two members. The trailing cyclic phase, if present, is
// skipped: ordering within a cycle is undefined.
func parallelGroups(g *graph.DependencyGraph, phases [][]string) [][]string {
	var groups [][]string
	for _, phase := range phases {
		if containsUnleveled(g, phase) {
			continue
		}
		var phaseGroups [][]string
		for _, id := range phase {
			placed := false
			for i := range phaseGroups {
				if independentOfAll(g, id, phaseGroups[i]) {
					phaseGroups[i] = append(phaseGroups[i], id)
					placed = true
					break
				}
			}
			if !placed {
				phaseGroups = append(phaseGroups, []string{id})
			}
		}
		groups = append(groups, phaseGroups...)
	}
	return groups
}

func containsUnleveled(g *graph.DependencyGraph, phase []string) bool {
	for _, id := range phase {
		if _, ok := g.Levels[id]; !ok {
			return true
		}
	}
	return false
}

// criticalPath computes the most expensive dependency chain among leveled
// units via a memoized longest-path walk over resolved edges, weighted by the
// duration model's per-unit cost. The path is returned dependency-first.
func criticalPath(g *graph.DependencyGraph, model config.DurationConfig) []string {
	weights := make(map[string]float64, len(g.Levels))
	next := make(map[string]string, len(g.Levels))

	var chainWeight func(id string) float64
	chainWeight = func(id string) float64 {
		if w, ok := weights[id]; ok {
			return w
		}

		best := 0.0
		bestDep := ""
		for _, depID := range g.Units[id].Dependencies {
			if _, leveled := g.Levels[depID]; !leveled {
				continue
			}
			w := chainWeight(depID)
			if w > best || (w == best && bestDep != "" && depID < bestDep) {
				best = w
				bestDep = depID
			}
		}

		total := unitCost(g.Units[id], model) + best
		weights[id] = total
		if bestDep != "" {
			next[id] = bestDep
		}
		return total
	}

	var endID string
	bestWeight := 0.0
	for _, id := range g.UnitIDs() {
		if _, leveled := g.Levels[id]; !leveled {
			continue
		}
		if w := chainWeight(id); w > bestWeight {
			bestWeight = w
			endID = id
		}
	}
	if endID == "" {
		return nil
	}

	var reversed []string
	for id := endID; ; {
		reversed = append(reversed, id)
		dep, ok := next[id]
		if !ok {
			break
		}
		id = dep
	}

	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path
}

// unitCost models a unit's execution cost in seconds:
// base + complexityFactor*weight + dependencyPenalty*|deps|.
func unitCost(unit *graph.Unit, model config.DurationConfig) float64 {
	return model.BaseSeconds +
		model.ComplexityFactorSeconds*unit.Complexity +
		model.DependencyPenaltySeconds*float64(len(unit.Dependencies))
}

// estimateDuration sums per-unit costs, discounts concurrent strategies by
// the parallel-efficiency factor, and floors the result.
func (p *Planner) estimateDuration(g *graph.DependencyGraph, strategy Strategy) time.Duration {
	if len(g.Units) == 0 {
		return 0
	}

	total := 0.0
	for _, unit := range g.Units {
		total += unitCost(unit, p.cfg.Duration)
	}
	if strategy != StrategySequential {
		total *= p.cfg.Duration.ParallelEfficiencyFactor
	}

	estimate := time.Duration(total * float64(time.Second))
	if minimum := p.cfg.Duration.Minimum(); estimate < minimum {
		estimate = minimum
	}
	return estimate
}
