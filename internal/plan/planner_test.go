package plan

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/errors"
	"github.com/gantrydev/gantry/internal/graph"
)

type testExtractor map[string][]string

func (m testExtractor) Extract(_ context.Context, unitID string) ([]string, float64, error) {
	return m[unitID], 1.0, nil
}

func mustBuild(t *testing.T, deps testExtractor, opts ...graph.Option) *graph.DependencyGraph {
	t.Helper()
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	g, err := graph.BuildGraph(context.Background(), ids, deps, opts...)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	return g
}

// assertLinearization checks that concatenating the plan's phases places
// every unit after all of its resolved dependencies.
func assertLinearization(t *testing.T, g *graph.DependencyGraph, p *ImplementationPlan) {
	t.Helper()
	pos := make(map[string]int)
	i := 0
	for _, phase := range p.Phases {
		for _, id := range phase {
			pos[id] = i
			i++
		}
	}

	for _, edge := range g.Edges {
		if _, leveled := g.Levels[edge.From]; !leveled {
			continue
		}
		if _, leveled := g.Levels[edge.To]; !leveled {
			continue
		}
		if pos[edge.From] <= pos[edge.To] {
			t.Errorf("strategy %s: %s at position %d does not come after its dependency %s at %d",
				p.Strategy, edge.From, pos[edge.From], edge.To, pos[edge.To])
		}
	}
}

func TestCreatePlan_DependencyDrivenChain(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"A": {"B"},
		"B": {"C"},
		"C": nil,
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyDependencyDriven)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	wantPhases := [][]string{{"C"}, {"B"}, {"A"}}
	if !reflect.DeepEqual(p.Phases, wantPhases) {
		t.Errorf("Phases = %v, want %v", p.Phases, wantPhases)
	}
	if !reflect.DeepEqual(p.CriticalPath, []string{"C", "B", "A"}) {
		t.Errorf("CriticalPath = %v, want [C B A]", p.CriticalPath)
	}
	if len(p.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", p.Warnings)
	}
	if p.ID == "" {
		t.Error("plan should have an id")
	}
}

func TestCreatePlan_CycleTrailingPhase(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"A": {"B"},
		"B": {"A"},
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyDependencyDriven)
	if err != nil {
		t.Fatalf("cycles must not fail planning: %v", err)
	}

	wantPhases := [][]string{{"A", "B"}}
	if !reflect.DeepEqual(p.Phases, wantPhases) {
		t.Errorf("Phases = %v, want trailing cyclic phase %v", p.Phases, wantPhases)
	}
	if len(p.CriticalPath) != 0 {
		t.Errorf("critical path must exclude cyclic units, got %v", p.CriticalPath)
	}
	if len(p.Warnings) != 1 || !strings.Contains(p.Warnings[0], "cycle") {
		t.Errorf("expected a cycle warning, got %v", p.Warnings)
	}
}

func TestCreatePlan_CycleWarningCountsDownstream(t *testing.T) {
	// a is not a cycle member, it only sits behind one, but it is still
	// unleveled and lands in the trailing phase. The warning must count it
	// without calling it part of a cycle.
	g := mustBuild(t, testExtractor{
		"a": {"b"},
		"b": {"c"},
		"c": {"b"},
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyDependencyDriven)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if len(p.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", p.Warnings)
	}
	w := p.Warnings[0]
	if !strings.Contains(w, "3 units are on or behind a dependency cycle") {
		t.Errorf("warning should count all trailing-phase units, got %q", w)
	}
	if !strings.Contains(w, "[a b c]") {
		t.Errorf("warning should list the downstream unit alongside the cycle members, got %q", w)
	}
}

func TestCreatePlan_ParallelIndependentUnits(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"u1": nil, "u2": nil, "u3": nil, "u4": nil, "u5": nil,
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyParallel)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if len(p.Phases) != 1 || len(p.Phases[0]) != 5 {
		t.Fatalf("expected one phase of 5 units, got %v", p.Phases)
	}
	if len(p.ParallelGroups) != 1 || len(p.ParallelGroups[0]) != 5 {
		t.Errorf("expected one parallel group of 5 units, got %v", p.ParallelGroups)
	}

	seq, err := planner.CreatePlan(g, StrategySequential)
	if err != nil {
		t.Fatalf("CreatePlan(sequential) failed: %v", err)
	}
	if p.EstimatedDuration >= seq.EstimatedDuration {
		t.Errorf("parallel estimate %v should be less than sequential %v",
			p.EstimatedDuration, seq.EstimatedDuration)
	}
}

func TestCreatePlan_SequentialSinglePhase(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
		"d": nil,
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategySequential)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if len(p.Phases) != 1 {
		t.Fatalf("sequential plan should have one phase, got %d", len(p.Phases))
	}
	if len(p.Phases[0]) != 4 {
		t.Errorf("phase should contain all 4 units, got %v", p.Phases[0])
	}
	assertLinearization(t, g, p)
}

func TestCreatePlan_HybridSplitsOversizedPhases(t *testing.T) {
	deps := testExtractor{"root": nil}
	for _, id := range []string{"l1", "l2", "l3", "l4", "l5"} {
		deps[id] = []string{"root"}
	}
	g := mustBuild(t, deps)

	cfg := config.Default()
	cfg.Scheduler.MaxParallelTasks = 2

	planner := NewPlanner(cfg, nil)
	p, err := planner.CreatePlan(g, StrategyHybrid)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	for _, phase := range p.Phases {
		if len(phase) > 2 {
			t.Errorf("hybrid phase %v exceeds max parallel tasks", phase)
		}
	}
	// root phase + ceil(5/2) sub-phases
	if len(p.Phases) != 4 {
		t.Errorf("expected 4 phases, got %v", p.Phases)
	}
	assertLinearization(t, g, p)
}

func TestCreatePlan_LinearizationAcrossStrategies(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": nil,
		"e": {"c"},
		"f": nil,
	})

	planner := NewPlanner(nil, nil)
	for _, strategy := range []Strategy{StrategySequential, StrategyParallel, StrategyHybrid, StrategyDependencyDriven} {
		p, err := planner.CreatePlan(g, strategy)
		if err != nil {
			t.Fatalf("CreatePlan(%s) failed: %v", strategy, err)
		}
		assertLinearization(t, g, p)

		total := 0
		for _, phase := range p.Phases {
			total += len(phase)
		}
		if total != len(g.Units) {
			t.Errorf("strategy %s: phases contain %d units, want %d", strategy, total, len(g.Units))
		}
	}
}

func TestCreatePlan_ParallelGroupsAreIndependent(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"a": {"b"},
		"b": nil,
		"c": nil,
	})

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyParallel)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	for _, group := range p.ParallelGroups {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if g.InDependencyChain(group[i], group[j]) {
					t.Errorf("group %v contains dependent units %s and %s", group, group[i], group[j])
				}
			}
		}
	}
}

func TestCreatePlan_UnresolvedDependencies(t *testing.T) {
	g := mustBuild(t, testExtractor{
		"api": {"ghost"},
	}, graph.WithAllowUnresolved())

	planner := NewPlanner(nil, nil)
	_, err := planner.CreatePlan(g, StrategySequential)
	if err == nil {
		t.Fatal("expected error for unresolved dependencies")
	}
	if !errors.Is(err, errors.ErrUnresolvedDependency) {
		t.Errorf("expected ErrUnresolvedDependency, got %v", err)
	}

	cfg := config.Default()
	cfg.Graph.AllowUnresolved = true
	planner = NewPlanner(cfg, nil)
	p, err := planner.CreatePlan(g, StrategySequential)
	if err != nil {
		t.Fatalf("allow_unresolved should downgrade to a warning: %v", err)
	}
	if len(p.Warnings) != 1 || !strings.Contains(p.Warnings[0], "unresolved") {
		t.Errorf("expected an unresolved warning, got %v", p.Warnings)
	}
}

func TestCreatePlan_InvalidInput(t *testing.T) {
	planner := NewPlanner(nil, nil)

	if _, err := planner.CreatePlan(nil, StrategySequential); !errors.Is(err, errors.ErrPlanInvalid) {
		t.Errorf("nil graph: expected ErrPlanInvalid, got %v", err)
	}

	g := mustBuild(t, testExtractor{"a": nil})
	if _, err := planner.CreatePlan(g, Strategy("adaptive")); !errors.Is(err, errors.ErrPlanInvalid) {
		t.Errorf("bad strategy: expected ErrPlanInvalid, got %v", err)
	}
}

func TestCreatePlan_CriticalPathPicksHeaviestChain(t *testing.T) {
	// Two chains into "top": d(1.0)->b(1.0)->top and c(5.0)->top. The c branch
	// is shorter but heavier.
	extractor := graph.ExtractorFunc(func(_ context.Context, unitID string) ([]string, float64, error) {
		switch unitID {
		case "top":
			return []string{"b", "c"}, 1.0, nil
		case "b":
			return []string{"d"}, 1.0, nil
		case "c":
			return nil, 5.0, nil
		case "d":
			return nil, 1.0, nil
		}
		return nil, 1.0, nil
	})
	g, err := graph.BuildGraph(context.Background(), []string{"top", "b", "c", "d"}, extractor)
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	planner := NewPlanner(nil, nil)
	p, err := planner.CreatePlan(g, StrategyDependencyDriven)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	// c alone: 30 + 60*5 = 330s; d->b chain: (30+60) + (30+60+10) = 190s.
	if !reflect.DeepEqual(p.CriticalPath, []string{"c", "top"}) {
		t.Errorf("CriticalPath = %v, want [c top]", p.CriticalPath)
	}
}

func TestEstimateDuration_Floor(t *testing.T) {
	cfg := config.Default()
	cfg.Duration.BaseSeconds = 1
	cfg.Duration.ComplexityFactorSeconds = 0
	cfg.Duration.DependencyPenaltySeconds = 0
	cfg.Duration.MinimumSeconds = 60

	g := mustBuild(t, testExtractor{"a": nil})
	planner := NewPlanner(cfg, nil)
	p, err := planner.CreatePlan(g, StrategySequential)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if p.EstimatedDuration != 60*time.Second {
		t.Errorf("estimate = %v, want floored 60s", p.EstimatedDuration)
	}
}

func TestNewSuccessCriteria(t *testing.T) {
	tests := []struct {
		units     int
		maxFailed int
	}{
		{0, 1},
		{1, 1},
		{5, 1},
		{10, 1},
		{20, 2},
		{100, 10},
	}

	for _, tt := range tests {
		c := NewSuccessCriteria(tt.units)
		if c.MaxFailedUnits != tt.maxFailed {
			t.Errorf("NewSuccessCriteria(%d).MaxFailedUnits = %d, want %d",
				tt.units, c.MaxFailedUnits, tt.maxFailed)
		}
		if c.MinCompletionRate != 0.95 || c.TimeLimitMultiplier != 1.5 || c.MinDependencyResolutionRate != 0.9 {
			t.Errorf("NewSuccessCriteria(%d) = %+v has wrong fixed thresholds", tt.units, c)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"sequential", "parallel", "hybrid", "dependency_driven"} {
		s, err := ParseStrategy(name)
		if err != nil || s.String() != name {
			t.Errorf("ParseStrategy(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := ParseStrategy("chaotic"); err == nil {
		t.Error("expected error for unknown strategy name")
	}
}

func TestTimeBudget(t *testing.T) {
	p := &ImplementationPlan{
		EstimatedDuration: 100 * time.Second,
		Criteria:          NewSuccessCriteria(3),
	}
	if got := p.TimeBudget(); got != 150*time.Second {
		t.Errorf("TimeBudget() = %v, want 150s", got)
	}
}
