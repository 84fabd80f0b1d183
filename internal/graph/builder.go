// Package graph builds dependency graphs over caller-supplied units:
// duplicate detection, dependency resolution, cycle detection, topological
// leveling, and advisory clustering. The builder never reads files; a
// DependencyExtractor supplies each unit's declared dependencies.
package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/gantrydev/gantry/internal/errors"
)

// Option configures a BuildGraph call.
type Option func(*buildOptions)

type buildOptions struct {
	allowUnresolved bool
	clusterPatterns []string
}

// WithAllowUnresolved makes dangling dependency ids non-fatal. They are
// recorded on the graph's Unresolved slice either way; without this option
// BuildGraph additionally returns an error.
func WithAllowUnresolved() Option {
	return func(o *buildOptions) {
		o.allowUnresolved = true
	}
}

// WithClusterPatterns sets the glob patterns used to group unit ids into
// advisory clusters. Without patterns, units cluster by shared id prefix.
func WithClusterPatterns(patterns ...string) Option {
	return func(o *buildOptions) {
		o.clusterPatterns = patterns
	}
}

// BuildGraph constructs a DependencyGraph over the given unit ids, querying
// the extractor for each unit's declared dependencies and complexity weight.
//
// Duplicate ids are fatal. Dangling dependency ids are recorded in
// Unresolved; unless WithAllowUnresolved is set they also produce an error,
// with the partially-populated graph returned alongside it for inspection.
// Cycles never fail the build: they are reported in Cycles and their units
// land in Unleveled instead of Levels.
func BuildGraph(ctx context.Context, ids []string, extractor DependencyExtractor, opts ...Option) (*DependencyGraph, error) {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}

	g := &DependencyGraph{
		Units:  make(map[string]*Unit, len(ids)),
		Levels: make(map[string]int),
	}
	if len(ids) == 0 {
		return g, nil
	}

	for _, id := range ids {
		if _, exists := g.Units[id]; exists {
			return nil, errors.NewGraphError("duplicate unit id", errors.ErrDuplicateUnit).
				WithUnitID(id)
		}
		g.Units[id] = &Unit{ID: id}
	}

	// Keep insertion order for extraction so extractor errors surface
	// deterministically, but dedupe declared dependencies per unit.
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deps, complexity, err := extractor.Extract(ctx, id)
		if err != nil {
			return nil, errors.NewGraphError("dependency extraction failed", err).WithUnitID(id)
		}

		unit := g.Units[id]
		if complexity > 0 {
			unit.Complexity = complexity
		}

		seen := make(map[string]bool, len(deps))
		for _, depID := range deps {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			unit.Dependencies = append(unit.Dependencies, depID)
		}
		sort.Strings(unit.Dependencies)
	}

	resolveEdges(g)
	g.Cycles = detectCycles(g)
	computeLevels(g)
	g.Clusters = buildClusters(g.UnitIDs(), options.clusterPatterns)

	if len(g.Unresolved) > 0 && !options.allowUnresolved {
		first := g.Unresolved[0]
		return g, errors.NewGraphError("dependency target does not exist", errors.ErrUnresolvedDependency).
			WithUnitID(first.UnitID).
			WithDependencyID(first.DependencyID)
	}

	return g, nil
}

// resolveEdges splits declared dependencies into resolved edges and
// unresolved records, and derives each unit's dependents.
func resolveEdges(g *DependencyGraph) {
	for _, id := range g.UnitIDs() {
		unit := g.Units[id]
		for _, depID := range unit.Dependencies {
			if _, ok := g.Units[depID]; !ok {
				g.Unresolved = append(g.Unresolved, UnresolvedDep{UnitID: id, DependencyID: depID})
				continue
			}
			g.Edges = append(g.Edges, Edge{From: id, To: depID})
			g.Units[depID].Dependents = append(g.Units[depID].Dependents, id)
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	sort.Slice(g.Unresolved, func(i, j int) bool {
		if g.Unresolved[i].UnitID != g.Unresolved[j].UnitID {
			return g.Unresolved[i].UnitID < g.Unresolved[j].UnitID
		}
		return g.Unresolved[i].DependencyID < g.Unresolved[j].DependencyID
	})
	for _, unit := range g.Units {
		sort.Strings(unit.Dependents)
	}
}

// detectCycles runs a DFS with a recursion stack over resolved edges. Each
// back-edge yields one cycle, reconstructed from the explicit DFS stack.
// The search continues past a found cycle so every back-edge is reported.
func detectCycles(g *DependencyGraph) [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string
	seenCycles := make(map[string]bool)

	var dfs func(unitID string)
	dfs = func(unitID string) {
		visited[unitID] = true
		onStack[unitID] = true
		stack = append(stack, unitID)

		for _, depID := range g.Units[unitID].Dependencies {
			if _, ok := g.Units[depID]; !ok {
				continue
			}
			if !visited[depID] {
				dfs(depID)
			} else if onStack[depID] {
				// Back edge: the cycle is the stack suffix from depID.
				start := len(stack) - 1
				for start >= 0 && stack[start] != depID {
					start--
				}
				cycle := canonicalCycle(stack[start:])
				key := strings.Join(cycle, "\x00")
				if !seenCycles[key] {
					seenCycles[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		onStack[unitID] = false
		stack = stack[:len(stack)-1]
	}

	for _, id := range g.UnitIDs() {
		if !visited[id] {
			dfs(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], "\x00") < strings.Join(cycles[j], "\x00")
	})
	return cycles
}

// canonicalCycle rotates a cycle so it starts at its smallest id, making
// cycle reporting independent of DFS entry point.
func canonicalCycle(path []string) []string {
	minIdx := 0
	for i, id := range path {
		if id < path[minIdx] {
			minIdx = i
		}
	}
	cycle := make([]string, 0, len(path))
	cycle = append(cycle, path[minIdx:]...)
	cycle = append(cycle, path[:minIdx]...)
	return cycle
}

// computeLevels runs Kahn's algorithm over resolved edges. Units whose
// in-degree never reaches zero sit on or behind a cycle and are reported in
// Unleveled rather than assigned a default level.
func computeLevels(g *DependencyGraph) {
	inDegree := make(map[string]int, len(g.Units))
	for id, unit := range g.Units {
		count := 0
		for _, depID := range unit.Dependencies {
			if _, ok := g.Units[depID]; ok {
				count++
			}
		}
		inDegree[id] = count
	}

	leveled := make(map[string]bool, len(g.Units))
	level := 0
	for len(leveled) < len(g.Units) {
		var current []string
		for _, id := range g.UnitIDs() {
			if !leveled[id] && inDegree[id] == 0 {
				current = append(current, id)
			}
		}
		if len(current) == 0 {
			break
		}

		for _, id := range current {
			g.Levels[id] = level
			leveled[id] = true
			for _, depID := range g.Units[id].Dependents {
				inDegree[depID]--
			}
		}
		level++
	}

	for _, id := range g.UnitIDs() {
		if !leveled[id] {
			g.Unleveled = append(g.Unleveled, id)
		}
	}
}

// buildClusters groups unit ids into advisory clusters. With glob patterns
// each id joins the first pattern it matches; otherwise ids sharing a prefix
// before their last '/' or '.' separator are grouped together. Singleton
// prefix groups are omitted.
func buildClusters(ids []string, patterns []string) map[string][]string {
	clusters := make(map[string][]string)

	if len(patterns) > 0 {
		compiled := make([]glob.Glob, 0, len(patterns))
		for _, p := range patterns {
			matcher, err := glob.Compile(p)
			if err != nil {
				continue
			}
			compiled = append(compiled, matcher)
		}
		for _, id := range ids {
			for i, matcher := range compiled {
				if matcher.Match(id) {
					clusters[patterns[i]] = append(clusters[patterns[i]], id)
					break
				}
			}
		}
	} else {
		for _, id := range ids {
			prefix := idPrefix(id)
			if prefix == "" {
				continue
			}
			clusters[prefix] = append(clusters[prefix], id)
		}
		for prefix, members := range clusters {
			if len(members) < 2 {
				delete(clusters, prefix)
			}
		}
	}

	if len(clusters) == 0 {
		return nil
	}
	for _, members := range clusters {
		sort.Strings(members)
	}
	return clusters
}

// idPrefix returns the portion of an id before its last '/' or '.' separator,
// or "" when the id has neither.
func idPrefix(id string) string {
	if idx := strings.LastIndex(id, "/"); idx > 0 {
		return id[:idx]
	}
	if idx := strings.LastIndex(id, "."); idx > 0 {
		return id[:idx]
	}
	return ""
}
