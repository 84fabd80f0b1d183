package cmd

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/coordinator"
	"github.com/gantrydev/gantry/internal/metrics"
)

var runStrategy string

var runCmd = &cobra.Command{
	Use:   "run <manifest.yaml>",
	Short: "Plan and execute a manifest's units with bounded parallelism",
	Long: `Run builds the dependency graph, creates an execution plan, and runs each
unit's shell command in dependency order. Units without a command succeed
immediately. A failed unit blocks its transitive dependents.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunCmd,
}

func init() {
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "scheduling strategy (sequential, parallel, hybrid, dependency_driven)")
	rootCmd.AddCommand(runCmd)
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	p, g, err := buildPlanFromManifest(cmd, cfg, args[0], runStrategy)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	out := cmd.OutOrStdout()
	c := coordinator.NewCoordinator(cfg, shellRunner{m}, &printHandler{out: out}, logger)
	result, err := c.Run(cmd.Context(), p, g)
	if err != nil {
		return err
	}

	renderResult(out, result)

	strategy, reason := metrics.RecommendStrategy(result.Metrics)
	fmt.Fprintf(out, "\nnext run: consider --strategy %s (%s)\n", strategy, reason)

	if !result.Succeeded(p.Criteria) {
		return fmt.Errorf("run did not meet success criteria: %d/%d completed, %d failed",
			result.Metrics.CompletedTasks, result.Metrics.TotalTasks, result.Metrics.FailedTasks)
	}
	return nil
}

// shellRunner executes each unit's manifest command through the shell.
type shellRunner struct {
	m *manifest
}

func (r shellRunner) RunUnit(ctx context.Context, task *coordinator.Task) error {
	unit := r.m.unit(task.UnitID)
	if unit == nil || unit.Run == "" {
		return nil
	}

	out, err := exec.CommandContext(ctx, "sh", "-c", unit.Run).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}
	return nil
}
