/*
Package events provides the in-process broker for job and session lifecycle
events.

The supervisor publishes a job.started / job.completed / job.failed /
job.cancelled event for every transition it performs, and session.created /
session.removed for session lifecycle. The metrics collector is the built-in
consumer; additional subscribers can attach without touching the supervisor.

Delivery is best-effort fan-out: the broker buffers up to 100 events and each
subscriber channel buffers 50. A subscriber that falls behind loses events
rather than stalling publishers — the supervisor's hot path must never block
on observability.
*/
package events
