/*
Package storage persists sessions, jobs and output logs as plain files.

The store is the single owner of the on-disk layout; no other component
writes under its roots. The layout itself is a public contract — records are
pretty-printed JSON that humans and external tooling read directly:

	┌─────────────────── ON-DISK LAYOUT ────────────────────┐
	│                                                         │
	│  <sessionsDir>/                                         │
	│    <sessionKey>/                                        │
	│      session.json        session record (atomic write)  │
	│      .claude/            credential sink, 0700          │
	│      jobs/                                              │
	│        <jobId>.json      job record (atomic write)      │
	│        <jobId>.log       output log (append-only)       │
	│                                                         │
	│  <workspacesDir>/                                       │
	│    <sessionKey>/         user working tree (precious)   │
	│                                                         │
	└─────────────────────────────────────────────────────────┘

# Write Discipline

Records that can be read concurrently (session.json, <jobId>.json) are always
replaced whole: marshal, write to a uniquely named sibling temp file, rename
over the target. Rename is atomic on POSIX filesystems, so a reader sees
either the old record or the new one, never a blend. Temp names carry a
random suffix so concurrent writers do not collide on the staging file.

Output logs are different: they have exactly one writer at a time (the job's
watcher) and take ordinary O_APPEND writes. The log's mtime is the
authoritative "last output" clock and its size is read from stat on demand —
the hot append path never touches the job record.

# Read Discipline

GetJob tolerates concurrent writers: an empty read or parse failure is
retried three times with growing backoff (50ms × attempt) before giving up.
A missing file is definitive absence and returns nil without error. List
operations tolerate a missing root and skip unreadable entries.

UpdateJob takes a mutate closure rather than a patch value:

	job, err := store.UpdateJob(key, jobID, func(j *types.Job) error {
		if j.Status != types.JobStatusRunning {
			return errAlreadyTerminal // refuse: someone beat us to it
		}
		j.Status = types.JobStatusCompleted
		j.CompletedAt = &now
		return nil
	})

The closure runs against a fresh read, which makes the monotonicity check
(terminal states are never overwritten) structural instead of optional.

# Session Pointer Rules

SetActiveJob enforces the one-active-job invariant at the lowest level: a
non-empty pointer can only be replaced by the same job or cleared to empty.
Attempting to set a different job while one is live fails with
ErrActiveJobExists.

# Workspaces

DeleteSession removes the session subtree (records, logs, credential sink)
and deliberately leaves the workspace alone. Workspaces hold user code;
removal requires the separate DeleteWorkspace call or the explicit opt-in
flag on CleanupIdleSessions.

# See Also

  - pkg/types: the record structs and their JSON contract
  - pkg/workspace: workspace directory lifecycle
  - pkg/supervisor: the primary writer of job records
*/
package storage
