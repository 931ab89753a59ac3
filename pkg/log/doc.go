/*
Package log provides structured logging for Hutch using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level.

# Architecture

Hutch's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stderr (default), file, custom   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("supervisor")              │          │
	│  │  - WithSessionKey("billing-fix")            │          │
	│  │  - WithJobID("7c2a...")                     │          │
	│  │  - WithContainer("claude-billing-fix")      │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

IMPORTANT: when Hutch runs as an MCP server, stdout carries the JSON-RPC
protocol stream. Everything the logger writes must go to stderr (or a file),
never stdout. Init defaults to stderr for exactly this reason; override the
Output writer only for CLI subcommands that do not speak MCP.

# Usage

Initializing the Logger:

	import "github.com/hutchlabs/hutch/pkg/log"

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

Simple Logging:

	log.Info("supervisor started")
	log.Warn("credential source missing, auth disabled")
	log.Errorf("failed to reach container engine", err)

Structured Logging:

	log.Logger.Info().
		Str("session_key", "billing-fix").
		Str("job_id", jobID).
		Msg("job started")

Context Loggers:

	watcherLog := log.WithComponent("watcher")
	watcherLog.Debug().Str("container", name).Msg("log stream opened")

	jobLog := log.WithJobID(job.ID)
	jobLog.Info().Str("status", string(job.Status)).Msg("job finished")

# Integration Points

This package integrates with:

  - pkg/supervisor: Logs job lifecycle and watcher decisions
  - pkg/reconciler: Logs orphan adoption and finalization
  - pkg/runtime: Logs container engine operations
  - pkg/api: Logs tool invocations (to stderr, never the MCP stream)
  - pkg/scheduler: Logs periodic cleanup runs

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Include context (session key, job ID, container name)
  - Log errors with .Err() so aggregation can group them

Don't:
  - Log credentials or OAuth tokens
  - Write to stdout while serving MCP
  - Log full transcript chunks (they can be large; log byte counts)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
