// Package scheduler runs idle-session cleanup on a cron schedule. It is a
// thin wrapper over robfig/cron: one entry, firing the supervisor's cleanup
// with workspace deletion always off.
package scheduler
