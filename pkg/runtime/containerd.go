package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for hutch containers.
	DefaultNamespace = "hutch"

	// DefaultContainerdSocket is the stock containerd socket path.
	DefaultContainerdSocket = "/run/containerd/containerd.sock"

	// logPollInterval paces the staging-file tail while a task runs.
	logPollInterval = 200 * time.Millisecond
)

// ContainerdEngine implements Runtime against containerd directly, without a
// docker daemon in between. Task output goes through a cio.LogFile into a
// per-container staging file, which StreamLogs tails until the task exits.
type ContainerdEngine struct {
	client    *containerd.Client
	namespace string
	image     string
	logDir    string
	budget    time.Duration
	logger    zerolog.Logger
}

// NewContainerdEngine connects to containerd and prepares the log staging
// directory.
func NewContainerdEngine(cfg EngineConfig) (*ContainerdEngine, error) {
	socket := cfg.Socket
	if socket == "" {
		socket = DefaultContainerdSocket
	}
	client, err := containerd.New(socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}
	logDir := filepath.Join(os.TempDir(), "hutch-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create log staging directory: %w", err)
	}
	return &ContainerdEngine{
		client:    client,
		namespace: DefaultNamespace,
		image:     cfg.Image,
		logDir:    logDir,
		budget:    cfg.budget(),
		logger:    log.WithComponent("runtime.containerd"),
	}, nil
}

func (e *ContainerdEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *ContainerdEngine) logPath(name string) string {
	return filepath.Join(e.logDir, name+".log")
}

func (e *ContainerdEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()
	if _, err := e.client.Version(ctx); err != nil {
		return fmt.Errorf("containerd unreachable: %w", err)
	}
	return nil
}

func (e *ContainerdEngine) CheckImage(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(namespaces.WithNamespace(ctx, e.namespace), e.budget)
	defer cancel()
	_, err := e.client.GetImage(ctx, e.image)
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get image %s: %w", e.image, err)
	}
	return true, nil
}

func (e *ContainerdEngine) StartDetached(ctx context.Context, opts StartOptions) (string, error) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	image, err := e.client.GetImage(ctx, e.image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", e.image, err)
	}

	mounts := []specs.Mount{
		{
			Source:      opts.WorkspacePath,
			Destination: workspaceMountPath,
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		},
	}
	if opts.CredentialsPath != "" {
		mounts = append(mounts, specs.Mount{
			Source:      opts.CredentialsPath,
			Destination: credentialsMountPath,
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		})
	}

	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs(assistantArgs(opts)...),
		oci.WithProcessCwd(workspaceMountPath),
		oci.WithEnv(opts.Env),
		oci.WithMounts(mounts),
		oci.WithMemoryLimit(jobMemoryLimitBytes),
		oci.WithNoNewPrivileges,
	}

	cont, err := e.client.NewContainer(
		ctx,
		opts.ContainerName,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(opts.ContainerName+"-snapshot", image),
		containerd.WithNewSpec(specOpts...),
		containerd.WithContainerLabels(map[string]string{
			"hutch.session-key": opts.SessionKey,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.ContainerName, err)
	}

	task, err := cont.NewTask(ctx, cio.LogFile(e.logPath(opts.ContainerName)))
	if err != nil {
		_ = cont.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("failed to create task for %s: %w", opts.ContainerName, err)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = cont.Delete(ctx, containerd.WithSnapshotCleanup)
		return "", fmt.Errorf("failed to start task for %s: %w", opts.ContainerName, err)
	}
	return cont.ID(), nil
}

func (e *ContainerdEngine) StreamLogs(ctx context.Context, name string, onChunk func([]byte)) (int, error) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	cont, err := e.client.LoadContainer(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", name, err)
	}
	task, err := cont.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to load task for %s: %w", name, err)
	}
	waitCh, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait on task for %s: %w", name, err)
	}

	// The shim creates the log file at task creation; opening with CREATE
	// just covers the race on very early streaming.
	f, err := os.OpenFile(e.logPath(name), os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file for %s: %w", name, err)
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	exited := false
	exitCode := 0
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if rerr == nil {
			continue
		}
		if rerr != io.EOF {
			return exitCode, fmt.Errorf("failed to read log file for %s: %w", name, rerr)
		}
		if exited {
			return exitCode, nil
		}
		select {
		case st := <-waitCh:
			code, _, werr := st.Result()
			if werr != nil {
				return 0, fmt.Errorf("task wait for %s: %w", name, werr)
			}
			exitCode = int(code)
			exited = true
			// One more pass over the file to drain output written
			// just before exit.
		case <-time.After(logPollInterval):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (e *ContainerdEngine) GetLogs(ctx context.Context, name string, opts LogOptions) ([]byte, error) {
	data, err := os.ReadFile(e.logPath(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file for %s: %w", name, err)
	}
	if opts.Tail > 0 {
		data = lastLines(data, opts.Tail)
	}
	return data, nil
}

// lastLines returns the trailing n lines of data.
func lastLines(data []byte, n int) []byte {
	end := len(data)
	for end > 0 && data[end-1] == '\n' {
		end--
	}
	idx := end
	for n > 0 && idx > 0 {
		i := bytes.LastIndexByte(data[:idx], '\n')
		if i < 0 {
			return data
		}
		idx = i
		n--
	}
	if idx == len(data) {
		return data
	}
	return data[idx+1:]
}

func (e *ContainerdEngine) GetStatus(ctx context.Context, name string) (*types.ContainerStatus, error) {
	ctx, cancel := context.WithTimeout(namespaces.WithNamespace(ctx, e.namespace), e.budget)
	defer cancel()

	cont, err := e.client.LoadContainer(ctx, name)
	if errdefs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load container %s: %w", name, err)
	}

	task, err := cont.Task(ctx, nil)
	if errdefs.IsNotFound(err) {
		// Container without a task: never started, or the task was
		// already reaped. Not running, exit code unknown.
		return &types.ContainerStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task for %s: %w", name, err)
	}

	st, err := task.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status for %s: %w", name, err)
	}
	status := &types.ContainerStatus{}
	switch st.Status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		status.Running = true
	case containerd.Stopped:
		code := int(st.ExitStatus)
		status.ExitCode = &code
		if !st.ExitTime.IsZero() {
			t := st.ExitTime
			status.FinishedAt = &t
		}
	}
	return status, nil
}

// GetStats returns nil for containerd: task metrics arrive as shim-specific
// typeurl payloads whose decoding depends on the host cgroup version. The
// docker engine is the stats-reporting path; callers already treat nil as
// "no sample".
func (e *ContainerdEngine) GetStats(ctx context.Context, name string) (*types.ContainerStats, error) {
	return nil, nil
}

func (e *ContainerdEngine) ListByPrefix(ctx context.Context, prefix string) ([]types.ContainerSummary, error) {
	ctx, cancel := context.WithTimeout(namespaces.WithNamespace(ctx, e.namespace), e.budget)
	defer cancel()

	conts, err := e.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var out []types.ContainerSummary
	for _, c := range conts {
		id := c.ID()
		if len(id) < len(prefix) || id[:len(prefix)] != prefix {
			continue
		}
		info, err := c.Info(ctx)
		if err != nil {
			continue
		}
		running := false
		if task, err := c.Task(ctx, nil); err == nil {
			if st, err := task.Status(ctx); err == nil && st.Status == containerd.Running {
				running = true
			}
		}
		out = append(out, types.ContainerSummary{
			Name:      id,
			Running:   running,
			CreatedAt: info.CreatedAt,
		})
	}
	return out, nil
}

func (e *ContainerdEngine) Kill(ctx context.Context, name string) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	cont, err := e.client.LoadContainer(ctx, name)
	if err != nil {
		return // already gone
	}

	if task, err := cont.Task(ctx, nil); err == nil {
		// SIGTERM first, escalate to SIGKILL after a grace window.
		if err := task.Kill(ctx, syscall.SIGTERM); err == nil {
			if waitCh, err := task.Wait(ctx); err == nil {
				select {
				case <-waitCh:
				case <-time.After(10 * time.Second):
					_ = task.Kill(ctx, syscall.SIGKILL)
					select {
					case <-waitCh:
					case <-time.After(5 * time.Second):
					}
				}
			}
		}
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil {
			e.logger.Debug().Err(err).Str("container", name).Msg("failed to delete task")
		}
	}

	if err := cont.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		e.logger.Warn().Err(err).Str("container", name).Msg("failed to delete container")
	}
	if err := os.Remove(e.logPath(name)); err != nil && !os.IsNotExist(err) {
		e.logger.Debug().Err(err).Str("container", name).Msg("failed to remove staged log")
	}
}
