package graph

import (
	"context"
	"sort"
)

// Unit is a single schedulable unit of work in the dependency graph.
type Unit struct {
	// ID uniquely identifies the unit within the graph
	ID string `json:"id"`
	// Dependencies are the ids this unit declares it depends on, deduplicated
	Dependencies []string `json:"dependencies,omitempty"`
	// Dependents are the ids of units that depend on this unit (derived)
	Dependents []string `json:"dependents,omitempty"`
	// Complexity is the unit's relative cost weight (>= 0)
	Complexity float64 `json:"complexity"`
}

// Edge is a directed dependency edge. From depends on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnresolvedDep records a declared dependency whose target is not in the graph.
type UnresolvedDep struct {
	UnitID       string `json:"unit_id"`
	DependencyID string `json:"dependency_id"`
}

// DependencyGraph is the result of building a graph over a set of units.
type DependencyGraph struct {
	// Units maps unit id to unit
	Units map[string]*Unit `json:"units"`
	// Edges lists all resolved dependency edges
	Edges []Edge `json:"edges,omitempty"`
	// Cycles lists each detected dependency cycle as an ordered closed path.
	// The first id is not repeated at the end; a self-loop is a single-id cycle.
	Cycles [][]string `json:"cycles,omitempty"`
	// Levels assigns each acyclic unit its topological level. Level 0 units
	// have no resolved dependencies; every unit's level is strictly greater
	// than the level of each of its resolved dependencies.
	Levels map[string]int `json:"levels"`
	// Unleveled lists units that could not be leveled because they sit on or
	// behind a cycle
	Unleveled []string `json:"unleveled,omitempty"`
	// Clusters groups unit ids into advisory related-work clusters
	Clusters map[string][]string `json:"clusters,omitempty"`
	// Unresolved lists declared dependencies whose target unit does not exist
	Unresolved []UnresolvedDep `json:"unresolved,omitempty"`
}

// DependencyExtractor supplies the declared dependencies and complexity
// weight for a unit. Implementations are provided by the caller; the graph
// builder never reads source artifacts itself.
type DependencyExtractor interface {
	Extract(ctx context.Context, unitID string) (deps []string, complexity float64, err error)
}

// ExtractorFunc adapts a function to the DependencyExtractor interface.
type ExtractorFunc func(ctx context.Context, unitID string) ([]string, float64, error)

// Extract implements DependencyExtractor.
func (f ExtractorFunc) Extract(ctx context.Context, unitID string) ([]string, float64, error) {
	return f(ctx, unitID)
}

// UnitIDs returns all unit ids in the graph, sorted.
func (g *DependencyGraph) UnitIDs() []string {
	ids := make([]string, 0, len(g.Units))
	for id := range g.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCycles reports whether any dependency cycle was detected.
func (g *DependencyGraph) HasCycles() bool {
	return len(g.Cycles) > 0
}

// TransitiveDependencies returns the set of all units the given unit depends
// on, directly or indirectly, following resolved edges only.
func (g *DependencyGraph) TransitiveDependencies(unitID string) map[string]bool {
	result := make(map[string]bool)
	g.collectDeps(unitID, result)
	return result
}

func (g *DependencyGraph) collectDeps(unitID string, seen map[string]bool) {
	unit, ok := g.Units[unitID]
	if !ok {
		return
	}
	for _, depID := range unit.Dependencies {
		if _, ok := g.Units[depID]; !ok {
			continue
		}
		if seen[depID] {
			continue
		}
		seen[depID] = true
		g.collectDeps(depID, seen)
	}
}

// TransitiveDependents returns the set of all units that depend on the given
// unit, directly or indirectly.
func (g *DependencyGraph) TransitiveDependents(unitID string) map[string]bool {
	result := make(map[string]bool)
	g.collectDependents(unitID, result)
	return result
}

func (g *DependencyGraph) collectDependents(unitID string, seen map[string]bool) {
	unit, ok := g.Units[unitID]
	if !ok {
		return
	}
	for _, depID := range unit.Dependents {
		if seen[depID] {
			continue
		}
		seen[depID] = true
		g.collectDependents(depID, seen)
	}
}

// InDependencyChain reports whether a and b are ordered by the graph: true
// when either transitively depends on the other.
func (g *DependencyGraph) InDependencyChain(a, b string) bool {
	if g.TransitiveDependencies(a)[b] {
		return true
	}
	return g.TransitiveDependencies(b)[a]
}
