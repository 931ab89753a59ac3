/*
Package metrics defines and exposes hutch's Prometheus metrics.

All metrics are package-level collectors registered in init, exposed through
Handler() on the admin HTTP listener's /metrics endpoint.

Two feeding paths:

  - The Collector samples state gauges (sessions, jobs by status, active
    jobs) from the store on a 15 second ticker and folds broker lifecycle
    events into the jobs-finished counters.
  - Hot-path components increment their own counters directly: the watcher
    observes job duration and appended output bytes, the notifier records
    delivery results, the reconciler its per-container outcomes, and the API
    layer times every tool invocation.

Gauges are authoritative snapshots (a restart re-derives them from disk);
counters are process-lifetime.
*/
package metrics
