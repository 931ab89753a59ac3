package runtime

import (
	"context"

	"github.com/hutchlabs/hutch/pkg/types"
)

// Runtime is the container engine port. The supervisor and reconciler know
// only these operations; each engine owns the sandboxing decisions (resource
// limits, capability drops, network mode, mounts) and the process plumbing
// behind them.
//
// Introspection operations (GetStatus, GetStats, ListByPrefix) self-impose a
// hard time budget inside the port, so callers never hang on a wedged engine
// socket.
type Runtime interface {
	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	// CheckImage reports whether the configured job image is present.
	CheckImage(ctx context.Context) (bool, error)

	// StartDetached creates and starts a job container in the background
	// and returns the engine's container ID.
	StartDetached(ctx context.Context, opts StartOptions) (string, error)

	// StreamLogs follows the container's combined stdout/stderr, invoking
	// onChunk for each block of bytes in arrival order. It returns the
	// container's exit code once the stream ends. It suspends until the
	// container exits or ctx is cancelled.
	StreamLogs(ctx context.Context, name string, onChunk func([]byte)) (int, error)

	// GetLogs fetches the container's output non-streaming. Returns nil
	// when the container or its logs are gone.
	GetLogs(ctx context.Context, name string, opts LogOptions) ([]byte, error)

	// GetStatus inspects a container. A nil status means the container
	// does not exist.
	GetStatus(ctx context.Context, name string) (*types.ContainerStatus, error)

	// GetStats samples resource usage. Nil when unavailable.
	GetStats(ctx context.Context, name string) (*types.ContainerStats, error)

	// ListByPrefix returns all containers whose name begins with prefix,
	// running or stopped.
	ListByPrefix(ctx context.Context, prefix string) ([]types.ContainerSummary, error)

	// Kill terminates and removes a container. Idempotent: killing a
	// container that is already stopped or gone is not an error, and Kill
	// never reports one.
	Kill(ctx context.Context, name string)

	// Close releases the engine connection.
	Close() error
}

// StartOptions carries the supervisor's intent for one job container. The
// engine decides how to realize it.
type StartOptions struct {
	// ContainerName is the deterministic claude-<key> name.
	ContainerName string

	// SessionKey is recorded as a container label for debugging.
	SessionKey string

	// Prompt is the natural-language task passed to the assistant.
	Prompt string

	// WorkspacePath is bind-mounted read-write at /workspace, the
	// assistant's working directory.
	WorkspacePath string

	// CredentialsPath, when non-empty, is bind-mounted at /root/.claude.
	// Mounted read-write so the assistant can refresh its own tokens.
	CredentialsPath string

	// ResumeSessionID, when non-empty, resumes a previous assistant
	// conversation via --resume.
	ResumeSessionID string

	// Env is extra container environment in KEY=VALUE form (for example a
	// pass-through OAuth token).
	Env []string
}

// LogOptions bounds a non-streaming log fetch.
type LogOptions struct {
	// Tail limits the fetch to the last N lines. 0 means everything.
	Tail int
}

// Mount points shared by both engines. The image is built around these paths.
const (
	workspaceMountPath   = "/workspace"
	credentialsMountPath = "/root/.claude"
)

// assistantArgs composes the assistant command line for a job. Both engines
// run the same invocation; only the sandboxing around it differs.
func assistantArgs(opts StartOptions) []string {
	args := []string{"claude", "-p", opts.Prompt, "--output-format", "stream-json", "--verbose"}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	return args
}
