package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/gantrydev/gantry/internal/coordinator"
	"github.com/gantrydev/gantry/internal/graph"
	"github.com/gantrydev/gantry/internal/plan"
)

const timeRounding = 10 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func separator() string {
	width := terminalWidth()
	if width > 100 {
		width = 100
	}
	return dimStyle.Render(strings.Repeat("─", width))
}

func renderPlan(w io.Writer, p *plan.ImplementationPlan, g *graph.DependencyGraph) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plan %s", p.ID)))
	fmt.Fprintf(w, "%s %s   %s %d units   %s %s\n",
		dimStyle.Render("strategy:"), p.Strategy,
		dimStyle.Render("size:"), len(p.Units),
		dimStyle.Render("estimate:"), p.EstimatedDuration)
	fmt.Fprintln(w, separator())

	fmt.Fprintln(w, headerStyle.Render("Phases"))
	for i, phase := range p.Phases {
		fmt.Fprintf(w, "  %d. %s\n", i+1, strings.Join(phase, ", "))
	}

	if len(p.CriticalPath) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Critical path"))
		fmt.Fprintf(w, "  %s\n", strings.Join(p.CriticalPath, " → "))
	}

	if len(g.Cycles) > 0 {
		fmt.Fprintln(w, warnStyle.Render("Cycles"))
		for _, cycle := range g.Cycles {
			fmt.Fprintf(w, "  %s\n", strings.Join(cycle, " → "))
		}
	}

	if len(g.Clusters) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Clusters"))
		for _, name := range sortedClusterNames(g.Clusters) {
			fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(g.Clusters[name], ", "))
		}
	}

	for _, warning := range p.Warnings {
		fmt.Fprintln(w, warnStyle.Render("warning: "+warning))
	}
}

func sortedClusterNames(clusters map[string][]string) []string {
	names := make([]string, 0, len(clusters))
	for name := range clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func renderResult(w io.Writer, result *coordinator.RunResult) {
	m := result.Metrics
	fmt.Fprintln(w, separator())
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %s", result.RunID)))
	fmt.Fprintf(w, "  %s  %s  %s\n",
		okStyle.Render(fmt.Sprintf("%d completed", m.CompletedTasks)),
		failStyle.Render(fmt.Sprintf("%d failed", m.FailedTasks)),
		warnStyle.Render(fmt.Sprintf("%d blocked", m.BlockedTasks)))
	fmt.Fprintf(w, "  wall clock %s   parallel efficiency %.2f   resolution rate %.2f\n",
		m.WallClock.Round(timeRounding), m.ParallelEfficiency, m.DependencyResolutionRate)

	for _, unitID := range sortedTaskIDs(result.Tasks) {
		task := result.Tasks[unitID]
		if task.State == coordinator.TaskCompleted {
			continue
		}
		line := fmt.Sprintf("  %s: %s", unitID, task.State)
		if task.BlockedBy != "" {
			line += fmt.Sprintf(" (blocked by %s)", task.BlockedBy)
		} else if task.Err != nil {
			line += fmt.Sprintf(" (%v)", task.Err)
		}
		if task.RecoveryHint != "" {
			line += dimStyle.Render(" — " + task.RecoveryHint)
		}
		fmt.Fprintln(w, failStyle.Render(line))
	}

	if len(m.Bottlenecks) > 0 {
		fmt.Fprintf(w, "  %s %s\n",
			warnStyle.Render("bottlenecks:"), strings.Join(m.Bottlenecks, ", "))
	}
}

func sortedTaskIDs(tasks map[string]*coordinator.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// printHandler streams task lifecycle events to the terminal as they happen.
type printHandler struct {
	mu  sync.Mutex
	out io.Writer
}

func (h *printHandler) OnTaskStarted(task coordinator.Task) {
	h.printf("%s %s\n", dimStyle.Render("▸"), task.UnitID)
}

func (h *printHandler) OnTaskCompleted(task coordinator.Task) {
	h.printf("%s %s %s\n", okStyle.Render("✓"), task.UnitID,
		dimStyle.Render(task.Duration().Round(timeRounding).String()))
}

func (h *printHandler) OnTaskFailed(task coordinator.Task) {
	h.printf("%s %s: %v\n", failStyle.Render("✗"), task.UnitID, task.Err)
}

func (h *printHandler) OnTaskBlocked(task coordinator.Task) {
	h.printf("%s %s blocked by %s\n", warnStyle.Render("⊘"), task.UnitID, task.BlockedBy)
}

func (h *printHandler) OnPhaseCompleted(phase, total int) {
	h.printf("%s\n", dimStyle.Render(fmt.Sprintf("phase %d/%d done", phase+1, total)))
}

func (h *printHandler) OnRunCompleted(*coordinator.RunResult) {}

func (h *printHandler) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}
