/*
Package supervisor implements hutch's job lifecycle: starting assistant
containers, watching them to completion, and answering the inspection and
cancellation operations.

# Lifecycle

Start validates pre-conditions (prompt, credentials, image), resolves or
creates the session, refuses a second job while one is active, materializes
credentials into the session's sink, creates the job record and launches the
container detached. Pre-condition failures leave no state behind; a spawn
failure after job creation is recorded on the job (spawn_failed) and
propagated.

Every running job gets exactly one watcher goroutine. The watcher owns the
container's log stream, appends extracted text deltas to the job's output
log, tracks terminal signals (rate limit, authentication failure, assistant
session id) and arms a watchdog: no output within the startup window, or a
mid-run stall beyond the idle window, kills the container. When the stream
ends the watcher classifies the outcome and performs the terminal
transition.

# Terminal classification

Precedence, highest first: parser signal (rate limit or auth failure, which
fail the job even on exit 0), watchdog kind, stream transport failure, exit
137 (OOM), any other non-zero exit. Only a clean exit with no overriding
signal completes the job.

# Races

Three writers can reach for the same terminal transition: the watcher,
Cancel, and the status path's self-healing. All three go through the store's
mutate-under-lock update with a still-running guard; the loser backs off and
adopts the winner's record. Job status is monotonic: once terminal, nothing
rewrites it.

Status is self-healing: a job recorded as running whose container turns out
to be stopped (a dead watcher, e.g. after a crash) is finalized inline from
the container's exit state. That path publishes an event but never sends a
notification.

Shutdown waits for watchers and in-flight notifications, bounded by its
context. Containers are left running on purpose; the reconciler adopts or
finalizes them on the next start-up.
*/
package supervisor
