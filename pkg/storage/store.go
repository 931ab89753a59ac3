package storage

import (
	"errors"
	"time"

	"github.com/hutchlabs/hutch/pkg/types"
)

// DefaultOutputLimit is the read size ReadJobOutput uses when the caller
// passes limit <= 0.
const DefaultOutputLimit = 64 * 1024

var (
	// ErrSessionNotFound is returned by operations that require an
	// existing session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrJobNotFound is returned by UpdateJob when the job record is
	// definitively absent.
	ErrJobNotFound = errors.New("job not found")

	// ErrActiveJobExists is returned by SetActiveJob when the session
	// already points at a different non-terminal job.
	ErrActiveJobExists = errors.New("session already has an active job")

	// ErrInvalidSessionKey is returned for keys that cannot be used as a
	// directory name.
	ErrInvalidSessionKey = errors.New("invalid session key")
)

// Store defines the persistence interface for sessions, jobs and output
// logs. The file-backed implementation owns the on-disk layout exclusively;
// no other component writes under its roots.
type Store interface {
	// Sessions
	GetSession(key string) (*types.Session, error) // nil, nil when absent
	CreateSession(key string) (*types.Session, error)
	GetOrCreateSession(key string) (*types.Session, error)
	UpdateSession(key, assistantSessionID string) (*types.Session, error)
	SetActiveJob(key, jobID string) error // empty jobID clears the pointer
	DeleteSession(key string)             // best-effort; errors are logged
	DeleteWorkspace(key string) error
	ListSessions() ([]*types.Session, error)
	CleanupIdleSessions(maxIdle time.Duration, deleteWorkspaces bool) ([]string, error)

	// Jobs
	CreateJob(key, prompt, containerName string) (*types.Job, error)
	GetJob(key, jobID string) (*types.Job, error) // nil, nil only on definitive absence
	UpdateJob(key, jobID string, mutate func(*types.Job) error) (*types.Job, error)
	ListJobs(key string) ([]*types.Job, error)
	GetActiveJob(key string) (*types.Job, error) // nil, nil when no active job

	// Output logs
	AppendJobOutput(key, jobID string, b []byte) error
	ReadJobOutput(key, jobID string, offset int64, limit int) (*types.OutputChunk, error)
	ReadJobOutputTail(key, jobID string, tailBytes int) (*types.OutputTail, error)

	// Paths
	CredentialDir(key string) string
	WorkspaceDir(key string) string

	// Utility
	Close() error
}
