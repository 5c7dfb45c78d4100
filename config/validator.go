package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ensemblekit/ensemble/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestrator.max_parallel_tasks")
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

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return logging.ValidLevels()
}

// ValidLogFormats returns the list of valid log output formats
func ValidLogFormats() []string {
	return []string{logging.FormatJSON, logging.FormatText}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateSignals()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	const minParallelTasks = 1
	const maxParallelTasks = 256

	if c.Orchestrator.MaxParallelTasks < minParallelTasks {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel_tasks",
			Value:   c.Orchestrator.MaxParallelTasks,
			Message: fmt.Sprintf("must be at least %d", minParallelTasks),
		})
	}
	if c.Orchestrator.MaxParallelTasks > maxParallelTasks {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel_tasks",
			Value:   c.Orchestrator.MaxParallelTasks,
			Message: fmt.Sprintf("exceeds maximum of %d", maxParallelTasks),
		})
	}

	// Queue depth of 0 derives from max_parallel_tasks, which is valid
	if c.Orchestrator.QueueDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.queue_depth",
			Value:   c.Orchestrator.QueueDepth,
			Message: "must be non-negative (0 derives from max_parallel_tasks)",
		})
	}

	const maxQueueDepth = 65536
	if c.Orchestrator.QueueDepth > maxQueueDepth {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.queue_depth",
			Value:   c.Orchestrator.QueueDepth,
			Message: fmt.Sprintf("exceeds maximum of %d", maxQueueDepth),
		})
	}

	return errors
}

// validateSignals validates the SignalsConfig
func (c *Config) validateSignals() []ValidationError {
	var errors []ValidationError

	if c.Signals.HistoryCapacity <= 0 {
		errors = append(errors, ValidationError{
			Field:   "signals.history_capacity",
			Value:   c.Signals.HistoryCapacity,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound to prevent memory issues
	const maxHistoryCapacity = 1_000_000
	if c.Signals.HistoryCapacity > maxHistoryCapacity {
		errors = append(errors, ValidationError{
			Field:   "signals.history_capacity",
			Value:   c.Signals.HistoryCapacity,
			Message: fmt.Sprintf("exceeds maximum of %d", maxHistoryCapacity),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}
