package types

import (
	"time"
)

// Session is a caller-named envelope for a sequence of one-job-at-a-time
// interactions with the assistant. The struct is the on-disk record: it is
// written as pretty-printed JSON to <sessionsDir>/<key>/session.json and the
// field tags are a stable contract read by external tooling.
type Session struct {
	SessionKey string `json:"sessionKey"`

	// AssistantSessionID is the opaque conversation handle the assistant
	// CLI reports on its stream. Empty until the first job completes;
	// subsequent jobs pass it back via --resume.
	AssistantSessionID string `json:"assistantSessionId,omitempty"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"` // never decreases
	MessageCount int       `json:"messageCount"`

	// ActiveJobID references the at-most-one job in {pending, running}.
	ActiveJobID string `json:"activeJobId,omitempty"`
}

// Job is a single bounded execution of a prompt in a container. Written as
// pretty-printed JSON to <sessionsDir>/<key>/jobs/<jobId>.json.
type Job struct {
	ID            string    `json:"jobId"`
	SessionKey    string    `json:"sessionKey"`
	ContainerName string    `json:"containerName"` // derived from SessionKey
	Status        JobStatus `json:"status"`
	Prompt        string    `json:"prompt"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"` // set atomically with terminal status

	ExitCode     *int      `json:"exitCode,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`

	OutputFile      string     `json:"outputFile"`
	OutputSize      int64      `json:"outputSize"`
	OutputTruncated bool       `json:"outputTruncated"`
	LastOutputAt    *time.Time `json:"lastOutputAt,omitempty"`

	// Metrics is the last container stats snapshot observed before the
	// job went terminal. Nil when the runtime never reported stats.
	Metrics *ContainerStats `json:"metrics,omitempty"`
}

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// ErrorKind is the stable failure taxonomy surfaced on failed jobs
type ErrorKind string

const (
	ErrorKindStartupTimeout   ErrorKind = "startup_timeout"
	ErrorKindIdleTimeout      ErrorKind = "idle_timeout"
	ErrorKindOOM              ErrorKind = "oom"
	ErrorKindCrash            ErrorKind = "crash"
	ErrorKindSpawnFailed      ErrorKind = "spawn_failed"
	ErrorKindRateLimit        ErrorKind = "rate_limit"
	ErrorKindAuthTokenExpired ErrorKind = "auth_token_expired"
	ErrorKindAuthFailed       ErrorKind = "auth_failed"
)

// ActivityState classifies what a running job appears to be doing
type ActivityState string

const (
	// ActivityActive means output was appended within the last 10 seconds.
	ActivityActive ActivityState = "active"
	// ActivityProcessing means no recent output but CPU usage above 20%.
	ActivityProcessing ActivityState = "processing"
	// ActivityIdle means no recent output and no significant CPU usage.
	ActivityIdle ActivityState = "idle"
)

// ContainerStatus is the runtime's view of a container's lifecycle. A nil
// *ContainerStatus means the container does not exist.
type ContainerStatus struct {
	Running    bool       `json:"running"`
	ExitCode   *int       `json:"exitCode,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ContainerStats is a point-in-time resource usage sample
type ContainerStats struct {
	MemMB      float64 `json:"memMB"`
	MemLimitMB float64 `json:"memLimitMB"`
	MemPct     float64 `json:"memPct"`
	CPUPct     float64 `json:"cpuPct"`
}

// ContainerSummary is one row of a listByPrefix result
type ContainerSummary struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusReport is the result of the status operation
type JobStatusReport struct {
	JobID      string    `json:"jobId"`
	SessionKey string    `json:"sessionKey"`
	Status     JobStatus `json:"status"`

	ElapsedSeconds       int64 `json:"elapsedSeconds"`
	OutputSize           int64 `json:"outputSize"`
	LastOutputSecondsAgo int64 `json:"lastOutputSecondsAgo"`

	// ActivityState is only meaningful while Status is running.
	ActivityState ActivityState `json:"activityState,omitempty"`

	TailOutput string `json:"tailOutput,omitempty"` // at most 500 bytes

	ExitCode *int            `json:"exitCode,omitempty"`
	Error    string          `json:"error,omitempty"`
	Metrics  *ContainerStats `json:"metrics,omitempty"`
}

// SessionSummary is one row of the sessions operation, a session record
// enriched with live container state.
type SessionSummary struct {
	SessionKey   string    `json:"sessionKey"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
	ActiveJobID  string    `json:"activeJobId,omitempty"`

	ContainerRunning bool      `json:"containerRunning"`
	JobStatus        JobStatus `json:"jobStatus,omitempty"` // status of the active job, if any
}

// OutputChunk is a bounded read of a job's output log
type OutputChunk struct {
	Content   []byte `json:"-"`
	Offset    int64  `json:"offset"`
	BytesRead int    `json:"bytesRead"`
	TotalSize int64  `json:"totalSize"`
	HasMore   bool   `json:"hasMore"`
}

// OutputTail is the trailing slice of a job's output log
type OutputTail struct {
	Tail                 string `json:"tail"`
	LastOutputSecondsAgo int64  `json:"lastOutputSecondsAgo"`
	TotalSize            int64  `json:"totalSize"`
}

// NotificationPayload is delivered to the Notifier exactly once per terminal
// transition performed by a watcher or by cancel.
type NotificationPayload struct {
	JobID          string    `json:"jobId"`
	SessionKey     string    `json:"sessionKey"`
	Status         JobStatus `json:"status"`
	ElapsedSeconds int64     `json:"elapsedSeconds"`
	OutputSize     int64     `json:"outputSize"`
	ExitCode       *int      `json:"exitCode,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
}
