/*
Package log provides structured logging for Grove using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

Grove's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                   │           │
	│  │  - Zerolog instance                        │           │
	│  │  - Initialized via log.Init()              │           │
	│  │  - Thread-safe for concurrent use          │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Configuration                    │           │
	│  │  - Level: debug/info/warn/error            │           │
	│  │  - Format: JSON or console (human)         │           │
	│  │  - Output: stdout, file, or custom writer  │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Context Loggers                    │           │
	│  │  - WithComponent("placement")              │           │
	│  │  - WithPath("L2N5")                        │           │
	│  │  - WithSession("a3f9c2d1")                 │           │
	│  │  - WithOwner("worker-7")                   │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │            Log Output                      │           │
	│  │                                            │           │
	│  │  JSON Format:                              │           │
	│  │  {                                         │           │
	│  │    "level": "info",                        │           │
	│  │    "component": "placement",               │           │
	│  │    "path": "L2N5",                         │           │
	│  │    "time": "2026-08-23T10:30:00Z",         │           │
	│  │    "message": "memory committed"           │           │
	│  │  }                                         │           │
	│  │                                            │           │
	│  │  Console Format:                           │           │
	│  │  10:30AM INF memory committed path=L2N5    │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Grove packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithPath: Add tree path context (e.g. "L2N5")
  - WithSession: Add session token prefix (never the full token)
  - WithOwner: Add allocation owner context

# Usage

Initializing the Logger:

	import "github.com/verdantlabs/grove/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Component Loggers:

	logger := log.WithComponent("placement")
	logger.Info().
		Str("path", handle.Path.String()).
		Uint64("size", handle.Units).
		Msg("memory committed")

Path Context:

	logger := log.WithPath("C0N3")
	logger.Debug().
		Float64("load", 0.82).
		Float64("efficiency", 1.05).
		Msg("compute span assigned")

Error Logging:

	if err := alloc.Release(handle); err != nil {
		log.Logger.Error().
			Err(err).
			Str("handle", handle.ID).
			Msg("release failed")
	}

Quick Helpers:

	log.Info("allocator started")
	log.Warn("trust below threshold, rescan scheduled")
	log.Errorf("rebalance failed", err)

# Integration Points

This package is used by:

  - pkg/allocator: Facade-level operation logging
  - pkg/placement: Placement decisions and rejections
  - pkg/security: Session and trust ledger events
  - pkg/balance: Rebalance cycle summaries
  - pkg/journal: Audit write failures
  - pkg/metrics: Collector start/stop
  - cmd/grove: Daemon startup and shutdown

# Design Patterns

Singleton Pattern:
  - One global logger per process
  - Child loggers inherit configuration
  - No logger plumbing through constructors

Context Enrichment:
  - Child loggers carry fixed fields
  - Per-event fields added at call sites
  - Session tokens are truncated to an 8-character prefix before logging

Level Guard:
  - zerolog skips field construction for filtered levels
  - Debug logging in the placement hot path costs nothing at info level

# Security

Session tokens are credentials. WithSession and all call sites log only
the first 8 characters, which is enough to correlate log lines with the
audit journal without disclosing the token itself.

# Best Practices

 1. Initialize once, in main, before any other component starts
 2. Use WithComponent for every subsystem logger
 3. Log handles by ID and path, never by dumping the struct
 4. Keep the placement hot path at debug level
 5. Use JSON output in production, console output in development

# See Also

  - pkg/metrics for Prometheus-based observability
  - pkg/journal for the persistent audit trail
  - cmd/grove for daemon logging configuration
*/
package log
