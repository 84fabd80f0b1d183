// Package config provides configuration management for gantry.
// Configuration is loaded from a YAML file, environment variables with the
// GANTRY_ prefix, and built-in defaults, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete gantry configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Duration  DurationConfig  `mapstructure:"duration"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig controls plan creation and task coordination
type SchedulerConfig struct {
	// Strategy is the default scheduling strategy
	// Options: "sequential", "parallel", "hybrid", "dependency_driven"
	Strategy string `mapstructure:"strategy"`
	// MaxParallelTasks caps how many tasks run concurrently within a phase
	MaxParallelTasks int `mapstructure:"max_parallel_tasks"`
	// TaskTimeoutSeconds is the per-task execution timeout (0 = no timeout)
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	// BottleneckComplexityThreshold marks units above this complexity as
	// bottleneck candidates when they fail to complete
	BottleneckComplexityThreshold float64 `mapstructure:"bottleneck_complexity_threshold"`
}

// TaskTimeout returns the per-task timeout as a time.Duration
func (s *SchedulerConfig) TaskTimeout() time.Duration {
	return time.Duration(s.TaskTimeoutSeconds) * time.Second
}

// DurationConfig holds the constants of the plan duration estimate.
// Per-unit cost = base + complexity_factor * weight + dependency_penalty * deps.
type DurationConfig struct {
	// BaseSeconds is the fixed cost assumed for every unit
	BaseSeconds float64 `mapstructure:"base_seconds"`
	// ComplexityFactorSeconds scales the unit's complexity weight
	ComplexityFactorSeconds float64 `mapstructure:"complexity_factor_seconds"`
	// DependencyPenaltySeconds is added per declared dependency
	DependencyPenaltySeconds float64 `mapstructure:"dependency_penalty_seconds"`
	// ParallelEfficiencyFactor discounts the total for concurrent strategies
	ParallelEfficiencyFactor float64 `mapstructure:"parallel_efficiency_factor"`
	// MinimumSeconds floors the final estimate
	MinimumSeconds float64 `mapstructure:"minimum_seconds"`
}

// Base returns the fixed per-unit cost as a time.Duration
func (d *DurationConfig) Base() time.Duration {
	return time.Duration(d.BaseSeconds * float64(time.Second))
}

// Minimum returns the estimate floor as a time.Duration
func (d *DurationConfig) Minimum() time.Duration {
	return time.Duration(d.MinimumSeconds * float64(time.Second))
}

// GraphConfig controls dependency graph construction
type GraphConfig struct {
	// ClusterPatterns are glob patterns used to group unit ids into advisory
	// clusters (e.g. "api/*", "internal.*"). When empty, units are clustered
	// by their longest shared path prefix.
	ClusterPatterns []string `mapstructure:"cluster_patterns"`
	// AllowUnresolved reports dangling dependency ids on the graph instead of
	// failing the build
	AllowUnresolved bool `mapstructure:"allow_unresolved"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Enabled turns file logging on or off
	Enabled bool `mapstructure:"enabled"`
	// Dir is the directory for log files (empty = stderr)
	Dir string `mapstructure:"dir"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Strategy:                      "dependency_driven",
			MaxParallelTasks:              4,
			TaskTimeoutSeconds:            300,
			BottleneckComplexityThreshold: 5.0,
		},
		Duration: DurationConfig{
			BaseSeconds:              30,
			ComplexityFactorSeconds:  60,
			DependencyPenaltySeconds: 10,
			ParallelEfficiencyFactor: 0.7,
			MinimumSeconds:           30,
		},
		Graph: GraphConfig{
			ClusterPatterns: nil,
			AllowUnresolved: false,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Dir:     "",
			Level:   "info",
		},
	}
}

// SetDefaults registers all default values with viper.
// Must be called before viper.ReadInConfig.
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.strategy", defaults.Scheduler.Strategy)
	viper.SetDefault("scheduler.max_parallel_tasks", defaults.Scheduler.MaxParallelTasks)
	viper.SetDefault("scheduler.task_timeout_seconds", defaults.Scheduler.TaskTimeoutSeconds)
	viper.SetDefault("scheduler.bottleneck_complexity_threshold", defaults.Scheduler.BottleneckComplexityThreshold)

	// Duration model defaults
	viper.SetDefault("duration.base_seconds", defaults.Duration.BaseSeconds)
	viper.SetDefault("duration.complexity_factor_seconds", defaults.Duration.ComplexityFactorSeconds)
	viper.SetDefault("duration.dependency_penalty_seconds", defaults.Duration.DependencyPenaltySeconds)
	viper.SetDefault("duration.parallel_efficiency_factor", defaults.Duration.ParallelEfficiencyFactor)
	viper.SetDefault("duration.minimum_seconds", defaults.Duration.MinimumSeconds)

	// Graph defaults
	viper.SetDefault("graph.cluster_patterns", defaults.Graph.ClusterPatterns)
	viper.SetDefault("graph.allow_unresolved", defaults.Graph.AllowUnresolved)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load unmarshals the current viper state into a validated Config
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the directory where the gantry config file lives.
// Respects XDG_CONFIG_HOME, falling back to ~/.config/gantry.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gantry")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gantry"
	}
	return filepath.Join(home, ".config", "gantry")
}

// ConfigFile returns the full path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
