package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantrydev/gantry/internal/config"
	"github.com/gantrydev/gantry/internal/graph"
	"github.com/gantrydev/gantry/internal/logging"
	"github.com/gantrydev/gantry/internal/plan"
)

var (
	planStrategy string
	planJSON     bool
)

var planCmd = &cobra.Command{
	Use:   "plan <manifest.yaml>",
	Short: "Build a dependency graph and print the execution plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanCmd,
}

func init() {
	planCmd.Flags().StringVarP(&planStrategy, "strategy", "s", "", "scheduling strategy (sequential, parallel, hybrid, dependency_driven)")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	p, g, err := buildPlanFromManifest(cmd, cfg, args[0], planStrategy)
	if err != nil {
		return err
	}

	if planJSON {
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	renderPlan(cmd.OutOrStdout(), p, g)
	return nil
}

// buildPlanFromManifest runs the manifest through the graph builder and the
// planner using the configured (or flag-overridden) strategy.
func buildPlanFromManifest(cmd *cobra.Command, cfg *config.Config, path, strategyOverride string) (*plan.ImplementationPlan, *graph.DependencyGraph, error) {
	m, err := loadManifest(path)
	if err != nil {
		return nil, nil, err
	}

	var opts []graph.Option
	if cfg.Graph.AllowUnresolved {
		opts = append(opts, graph.WithAllowUnresolved())
	}
	if len(cfg.Graph.ClusterPatterns) > 0 {
		opts = append(opts, graph.WithClusterPatterns(cfg.Graph.ClusterPatterns...))
	}

	g, err := graph.BuildGraph(cmd.Context(), m.ids(), m.extractor(), opts...)
	if err != nil {
		return nil, nil, err
	}

	name := strategyOverride
	if name == "" {
		name = cfg.Scheduler.Strategy
	}
	strategy, err := plan.ParseStrategy(name)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer logger.Close()

	p, err := plan.NewPlanner(cfg, logger).CreatePlan(g, strategy)
	if err != nil {
		return nil, nil, err
	}
	return p, g, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}
