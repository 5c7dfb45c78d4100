// Package logging provides structured logging for ensemble components.
//
// This package wraps Go's log/slog to provide structured logs with
// attribute propagation. Every ensemble component accepts an optional
// *Logger and falls back to a no-op logger when none is provided, so
// library users opt into logging rather than being forced through it.
//
// # Features
//
//   - JSON or text structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Attribute propagation (component, task ID, agent ID)
//   - Caller-provided output writer (stderr by default)
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. Child
// loggers created via With* methods share the underlying handler safely.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: "INFO"})
//
//	// Log messages at various levels
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("operation completed", "duration_ms", 150)
//	logger.Warn("potential issue", "threshold", 100)
//	logger.Error("operation failed", "error", err.Error())
//
// # Attribute Propagation
//
// Create child loggers with persistent attributes:
//
//	busLogger := logger.WithComponent("signal")
//	taskLogger := logger.WithComponent("task").WithTask("task-abc123")
//
//	// All logs from taskLogger include component and task_id
//	taskLogger.Info("state changed", "from", "pending", "to", "running")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"state changed","component":"task","task_id":"task-abc123","from":"pending","to":"running"}
//
// # Testing
//
// For testing, use [Nop] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.Nop()
//	    // Use logger in tests without producing output
//	}
//
// # Log Levels
//
// The package defines four log levels:
//
//   - [LevelDebug]: Detailed information for debugging
//   - [LevelInfo]: General operational information (default)
//   - [LevelWarn]: Warning conditions that may need attention
//   - [LevelError]: Error conditions that affect functionality
//
// Use [ValidLevels] to get the list of valid level strings, and [ParseLevel]
// to normalize user-provided level strings.
package logging
