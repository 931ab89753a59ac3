/*
Package types defines the core data structures shared across Hutch components.

This package contains the domain model for the job supervisor: sessions, jobs,
their status and failure taxonomies, runtime observation types, and the shapes
returned by the inspection operations. It has no dependencies on other Hutch
packages and may be imported by any component.

# Record Types vs View Types

Two of these structs are persistent records with a byte-level contract:

	Session  →  <sessionsDir>/<key>/session.json
	Job      →  <sessionsDir>/<key>/jobs/<jobId>.json

Both are written as pretty-printed UTF-8 JSON with camelCase field names.
External tooling (and humans with an editor) read these files directly, so the
JSON tags are a stable interface: renaming a tag is a breaking change even when
the Go identifier stays the same.

The remaining types (JobStatusReport, SessionSummary, OutputChunk, OutputTail,
NotificationPayload, ContainerStatus, ContainerStats, ContainerSummary) are
views assembled on demand. They are serialized when convenient but nothing on
disk depends on them.

# Job Lifecycle

	pending ──▶ running ──▶ completed
	   │           ├──────▶ failed
	   │           └──────▶ cancelled
	   └──────────────────▶ failed (spawn_failed)

A job reaches a terminal status at most once. Terminal fields (CompletedAt,
ExitCode, ErrorKind, ErrorMessage) are set in the same write as the status
transition and are immutable afterwards.

# Nullable Fields

Nullable record fields use pointer types (*time.Time, *int) or omitempty
strings so that "not yet known" is distinguishable from zero values. ExitCode
in particular must keep 0 and absent apart: a completed job has exit code 0,
a still-running job has none.

# Usage

	job := &types.Job{
		ID:            uuid.NewString(),
		SessionKey:    "billing-fix",
		ContainerName: "claude-billing-fix",
		Status:        types.JobStatusPending,
		Prompt:        prompt,
		CreatedAt:     time.Now().UTC(),
	}

	if job.IsTerminal() {
		// safe to read CompletedAt / ExitCode / ErrorKind
	}

# See Also

  - pkg/storage: persists Session and Job records
  - pkg/supervisor: drives JobStatus transitions
  - pkg/runtime: produces ContainerStatus / ContainerStats / ContainerSummary
*/
package types
