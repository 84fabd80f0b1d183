package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.max_parallel_tasks")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidStrategies returns the list of valid scheduling strategy names
func ValidStrategies() []string {
	return []string{"sequential", "parallel", "hybrid", "dependency_driven"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateDuration()...)
	errors = append(errors, c.validateGraph()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStrategies(), c.Scheduler.Strategy) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.strategy",
			Value:   c.Scheduler.Strategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStrategies(), ", ")),
		})
	}

	if c.Scheduler.MaxParallelTasks < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_parallel_tasks",
			Value:   c.Scheduler.MaxParallelTasks,
			Message: "must be at least 1",
		})
	}

	if c.Scheduler.TaskTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.task_timeout_seconds",
			Value:   c.Scheduler.TaskTimeoutSeconds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	if c.Scheduler.BottleneckComplexityThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.bottleneck_complexity_threshold",
			Value:   c.Scheduler.BottleneckComplexityThreshold,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateDuration() []ValidationError {
	var errors []ValidationError

	nonNegative := []struct {
		field string
		value float64
	}{
		{"duration.base_seconds", c.Duration.BaseSeconds},
		{"duration.complexity_factor_seconds", c.Duration.ComplexityFactorSeconds},
		{"duration.dependency_penalty_seconds", c.Duration.DependencyPenaltySeconds},
		{"duration.minimum_seconds", c.Duration.MinimumSeconds},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Duration.ParallelEfficiencyFactor <= 0 || c.Duration.ParallelEfficiencyFactor > 1 {
		errors = append(errors, ValidationError{
			Field:   "duration.parallel_efficiency_factor",
			Value:   c.Duration.ParallelEfficiencyFactor,
			Message: "must be in (0, 1]",
		})
	}

	return errors
}

func (c *Config) validateGraph() []ValidationError {
	var errors []ValidationError

	for _, pattern := range c.Graph.ClusterPatterns {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "graph.cluster_patterns",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
