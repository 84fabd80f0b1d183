package graph

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/gantrydev/gantry/internal/errors"
)

// mapExtractor serves dependencies and complexity from a fixed table.
type mapExtractor map[string]unitSpec

type unitSpec struct {
	deps       []string
	complexity float64
}

func (m mapExtractor) Extract(_ context.Context, unitID string) ([]string, float64, error) {
	spec := m[unitID]
	return spec.deps, spec.complexity, nil
}

func TestBuildGraph_Chain(t *testing.T) {
	extractor := mapExtractor{
		"A": {deps: []string{"B"}},
		"B": {deps: []string{"C"}},
		"C": {},
	}

	g, err := BuildGraph(context.Background(), []string{"A", "B", "C"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	wantLevels := map[string]int{"C": 0, "B": 1, "A": 2}
	if !reflect.DeepEqual(g.Levels, wantLevels) {
		t.Errorf("Levels = %v, want %v", g.Levels, wantLevels)
	}
	if len(g.Cycles) != 0 {
		t.Errorf("expected no cycles, got %v", g.Cycles)
	}
	if len(g.Unleveled) != 0 {
		t.Errorf("expected no unleveled units, got %v", g.Unleveled)
	}

	wantEdges := []Edge{{From: "A", To: "B"}, {From: "B", To: "C"}}
	if !reflect.DeepEqual(g.Edges, wantEdges) {
		t.Errorf("Edges = %v, want %v", g.Edges, wantEdges)
	}

	if !reflect.DeepEqual(g.Units["C"].Dependents, []string{"B"}) {
		t.Errorf("C.Dependents = %v, want [B]", g.Units["C"].Dependents)
	}
}

func TestBuildGraph_LevelInvariant(t *testing.T) {
	// Diamond with a tail: e ← {c, d} ← b ← a
	extractor := mapExtractor{
		"a": {deps: []string{"b"}},
		"b": {deps: []string{"c", "d"}},
		"c": {deps: []string{"e"}},
		"d": {deps: []string{"e"}},
		"e": {},
	}

	g, err := BuildGraph(context.Background(), []string{"a", "b", "c", "d", "e"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	for _, edge := range g.Edges {
		if g.Levels[edge.From] <= g.Levels[edge.To] {
			t.Errorf("level(%s)=%d not greater than level(%s)=%d",
				edge.From, g.Levels[edge.From], edge.To, g.Levels[edge.To])
		}
	}
}

func TestBuildGraph_Deterministic(t *testing.T) {
	extractor := mapExtractor{
		"a": {deps: []string{"c", "b"}},
		"b": {deps: []string{"c"}},
		"c": {},
		"d": {deps: []string{"c"}},
	}
	ids := []string{"d", "a", "c", "b"}

	first, err := BuildGraph(context.Background(), ids, extractor)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := BuildGraph(context.Background(), ids, extractor)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different graphs")
	}
}

func TestBuildGraph_EmptyInput(t *testing.T) {
	g, err := BuildGraph(context.Background(), nil, mapExtractor{})
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	if len(g.Units) != 0 || len(g.Edges) != 0 {
		t.Errorf("expected empty graph, got %d units, %d edges", len(g.Units), len(g.Edges))
	}
}

func TestBuildGraph_DuplicateID(t *testing.T) {
	_, err := BuildGraph(context.Background(), []string{"a", "b", "a"}, mapExtractor{})
	if err == nil {
		t.Fatal("expected error for duplicate unit id")
	}
	if !errors.Is(err, errors.ErrDuplicateUnit) {
		t.Errorf("expected ErrDuplicateUnit, got %v", err)
	}

	var graphErr *errors.GraphError
	if !errors.As(err, &graphErr) || graphErr.UnitID != "a" {
		t.Errorf("expected GraphError naming unit a, got %v", err)
	}
}

func TestBuildGraph_TwoNodeCycle(t *testing.T) {
	extractor := mapExtractor{
		"X": {deps: []string{"Y"}},
		"Y": {deps: []string{"X"}},
	}

	g, err := BuildGraph(context.Background(), []string{"X", "Y"}, extractor)
	if err != nil {
		t.Fatalf("cycles must not fail the build: %v", err)
	}

	if len(g.Cycles) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d: %v", len(g.Cycles), g.Cycles)
	}
	if !reflect.DeepEqual(g.Cycles[0], []string{"X", "Y"}) {
		t.Errorf("cycle = %v, want [X Y]", g.Cycles[0])
	}

	if len(g.Levels) != 0 {
		t.Errorf("cyclic units must not be leveled, got %v", g.Levels)
	}
	if !reflect.DeepEqual(g.Unleveled, []string{"X", "Y"}) {
		t.Errorf("Unleveled = %v, want [X Y]", g.Unleveled)
	}
}

func TestBuildGraph_SelfLoop(t *testing.T) {
	extractor := mapExtractor{
		"solo": {deps: []string{"solo"}},
	}

	g, err := BuildGraph(context.Background(), []string{"solo"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	if len(g.Cycles) != 1 || !reflect.DeepEqual(g.Cycles[0], []string{"solo"}) {
		t.Errorf("expected single-unit cycle [solo], got %v", g.Cycles)
	}
	if !reflect.DeepEqual(g.Unleveled, []string{"solo"}) {
		t.Errorf("Unleveled = %v, want [solo]", g.Unleveled)
	}
}

func TestBuildGraph_CycleWithDownstream(t *testing.T) {
	// a depends on the b<->c cycle; none of the three can be leveled, but d can.
	extractor := mapExtractor{
		"a": {deps: []string{"b"}},
		"b": {deps: []string{"c"}},
		"c": {deps: []string{"b"}},
		"d": {},
	}

	g, err := BuildGraph(context.Background(), []string{"a", "b", "c", "d"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	if !reflect.DeepEqual(g.Unleveled, []string{"a", "b", "c"}) {
		t.Errorf("Unleveled = %v, want [a b c]", g.Unleveled)
	}
	if level, ok := g.Levels["d"]; !ok || level != 0 {
		t.Errorf("Levels[d] = %d (ok=%v), want 0", level, ok)
	}
}

func TestBuildGraph_UnresolvedDependency(t *testing.T) {
	extractor := mapExtractor{
		"api": {deps: []string{"ghost"}},
	}

	g, err := BuildGraph(context.Background(), []string{"api"}, extractor)
	if err == nil {
		t.Fatal("expected error for unresolved dependency")
	}
	if !errors.Is(err, errors.ErrUnresolvedDependency) {
		t.Errorf("expected ErrUnresolvedDependency, got %v", err)
	}
	if g == nil {
		t.Fatal("graph should be returned for inspection alongside the error")
	}
	want := []UnresolvedDep{{UnitID: "api", DependencyID: "ghost"}}
	if !reflect.DeepEqual(g.Unresolved, want) {
		t.Errorf("Unresolved = %v, want %v", g.Unresolved, want)
	}
}

func TestBuildGraph_AllowUnresolved(t *testing.T) {
	extractor := mapExtractor{
		"api": {deps: []string{"ghost", "db"}},
		"db":  {},
	}

	g, err := BuildGraph(context.Background(), []string{"api", "db"}, extractor, WithAllowUnresolved())
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	want := []UnresolvedDep{{UnitID: "api", DependencyID: "ghost"}}
	if !reflect.DeepEqual(g.Unresolved, want) {
		t.Errorf("Unresolved = %v, want %v", g.Unresolved, want)
	}

	// The resolved edge still participates in leveling.
	if g.Levels["db"] != 0 || g.Levels["api"] != 1 {
		t.Errorf("Levels = %v, want db=0 api=1", g.Levels)
	}
}

func TestBuildGraph_DeduplicatesDependencies(t *testing.T) {
	extractor := mapExtractor{
		"a": {deps: []string{"b", "b", "b"}},
		"b": {},
	}

	g, err := BuildGraph(context.Background(), []string{"a", "b"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	if !reflect.DeepEqual(g.Units["a"].Dependencies, []string{"b"}) {
		t.Errorf("Dependencies = %v, want [b]", g.Units["a"].Dependencies)
	}
	if len(g.Edges) != 1 {
		t.Errorf("expected 1 edge, got %d", len(g.Edges))
	}
}

func TestBuildGraph_PrefixClusters(t *testing.T) {
	extractor := mapExtractor{
		"api/users":  {},
		"api/orders": {},
		"worker":     {},
	}

	g, err := BuildGraph(context.Background(), []string{"api/users", "api/orders", "worker"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	want := map[string][]string{"api": {"api/orders", "api/users"}}
	if !reflect.DeepEqual(g.Clusters, want) {
		t.Errorf("Clusters = %v, want %v", g.Clusters, want)
	}
}

func TestBuildGraph_GlobClusters(t *testing.T) {
	extractor := mapExtractor{
		"svc-auth":  {},
		"svc-user":  {},
		"lib-utils": {},
	}

	g, err := BuildGraph(context.Background(), []string{"svc-auth", "svc-user", "lib-utils"}, extractor,
		WithClusterPatterns("svc-*", "lib-*"))
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	want := map[string][]string{
		"svc-*": {"svc-auth", "svc-user"},
		"lib-*": {"lib-utils"},
	}
	if !reflect.DeepEqual(g.Clusters, want) {
		t.Errorf("Clusters = %v, want %v", g.Clusters, want)
	}
}

func TestBuildGraph_ExtractorError(t *testing.T) {
	boom := errors.New("parse failure")
	extractor := ExtractorFunc(func(_ context.Context, unitID string) ([]string, float64, error) {
		if unitID == "bad" {
			return nil, 0, boom
		}
		return nil, 0, nil
	})

	_, err := BuildGraph(context.Background(), []string{"ok", "bad"}, extractor)
	if err == nil {
		t.Fatal("expected extractor error to propagate")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped extractor error, got %v", err)
	}

	var graphErr *errors.GraphError
	if !errors.As(err, &graphErr) || graphErr.UnitID != "bad" {
		t.Errorf("expected GraphError naming unit bad, got %v", err)
	}
}

func TestBuildGraph_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildGraph(ctx, []string{"a"}, mapExtractor{"a": {}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTransitiveDependencies(t *testing.T) {
	extractor := mapExtractor{
		"a": {deps: []string{"b"}},
		"b": {deps: []string{"c"}},
		"c": {},
		"d": {},
	}

	g, err := BuildGraph(context.Background(), []string{"a", "b", "c", "d"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	deps := g.TransitiveDependencies("a")
	var got []string
	for id := range deps {
		got = append(got, id)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("TransitiveDependencies(a) = %v, want [b c]", got)
	}

	if !g.InDependencyChain("a", "c") {
		t.Error("a and c should be in a dependency chain")
	}
	if !g.InDependencyChain("c", "a") {
		t.Error("chain membership should be symmetric")
	}
	if g.InDependencyChain("a", "d") {
		t.Error("a and d are independent")
	}

	dependents := g.TransitiveDependents("c")
	if !dependents["a"] || !dependents["b"] || len(dependents) != 2 {
		t.Errorf("TransitiveDependents(c) = %v, want {a, b}", dependents)
	}
}
