package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/types"
)

// Sandbox limits applied to every job container. The assistant is a build
// tool, not a service: it gets bounded memory and CPU, no privilege
// escalation, and the engine's default bridge network for API access.
const (
	jobMemoryLimitBytes = 4 * 1024 * 1024 * 1024
	jobNanoCPUs         = 2_000_000_000 // 2 cores
)

// EngineConfig is shared engine construction input.
type EngineConfig struct {
	// Image is the job container image.
	Image string

	// Socket overrides the engine's default socket path. Empty uses the
	// engine default (or, for docker, the DOCKER_HOST environment).
	Socket string

	// StatusBudget bounds each introspection call. Zero means 5s.
	StatusBudget time.Duration
}

func (c EngineConfig) budget() time.Duration {
	if c.StatusBudget <= 0 {
		return 5 * time.Second
	}
	return c.StatusBudget
}

// DockerEngine implements Runtime against the Docker daemon. It is the
// default engine: it covers Docker Desktop on macOS and dockerd on Linux
// with the same code path.
type DockerEngine struct {
	client *client.Client
	image  string
	budget time.Duration
	logger zerolog.Logger
}

// NewDockerEngine connects to the Docker daemon. The client negotiates the
// API version so older daemons keep working.
func NewDockerEngine(cfg EngineConfig) (*DockerEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Socket != "" {
		opts = append(opts, client.WithHost("unix://"+cfg.Socket))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerEngine{
		client: cli,
		image:  cfg.Image,
		budget: cfg.budget(),
		logger: log.WithComponent("runtime.docker"),
	}, nil
}

func (e *DockerEngine) Close() error {
	return e.client.Close()
}

func (e *DockerEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()
	if _, err := e.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

func (e *DockerEngine) CheckImage(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()
	_, err := e.client.ImageInspect(ctx, e.image)
	if client.IsErrNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect image %s: %w", e.image, err)
	}
	return true, nil
}

func (e *DockerEngine) StartDetached(ctx context.Context, opts StartOptions) (string, error) {
	binds := []string{opts.WorkspacePath + ":" + workspaceMountPath}
	if opts.CredentialsPath != "" {
		binds = append(binds, opts.CredentialsPath+":"+credentialsMountPath)
	}

	created, err := e.client.ContainerCreate(ctx,
		&container.Config{
			Image:      e.image,
			Cmd:        strslice.StrSlice(assistantArgs(opts)),
			Env:        opts.Env,
			WorkingDir: workspaceMountPath,
			Labels: map[string]string{
				"hutch.session-key": opts.SessionKey,
			},
		},
		&container.HostConfig{
			Binds:       binds,
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:   jobMemoryLimitBytes,
				NanoCPUs: jobNanoCPUs,
			},
		},
		nil, nil, opts.ContainerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.ContainerName, err)
	}

	if err := e.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// A created-but-unstartable container would block the name on the
		// next attempt.
		_ = e.client.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", opts.ContainerName, err)
	}
	return created.ID, nil
}

// chunkWriter adapts an onChunk callback to io.Writer for stdcopy.
type chunkWriter func([]byte)

func (w chunkWriter) Write(p []byte) (int, error) {
	w(p)
	return len(p), nil
}

func (e *DockerEngine) StreamLogs(ctx context.Context, name string, onChunk func([]byte)) (int, error) {
	// Register the wait before following logs so the exit code cannot be
	// missed between stream EOF and the wait call.
	waitCh, waitErrCh := e.client.ContainerWait(ctx, name, container.WaitConditionNotRunning)

	rc, err := e.client.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to follow logs for %s: %w", name, err)
	}
	defer rc.Close()

	w := chunkWriter(onChunk)
	if _, err := stdcopy.StdCopy(w, w, rc); err != nil && err != io.EOF {
		// The stream breaks when the container is force-removed
		// mid-flight; the wait below settles the exit code either way.
		e.logger.Debug().Err(err).Str("container", name).Msg("log stream ended with error")
	}

	select {
	case res := <-waitCh:
		if res.Error != nil {
			return int(res.StatusCode), fmt.Errorf("container %s wait: %s", name, res.Error.Message)
		}
		return int(res.StatusCode), nil
	case err := <-waitErrCh:
		return 0, fmt.Errorf("failed to wait for container %s: %w", name, err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *DockerEngine) GetLogs(ctx context.Context, name string, opts LogOptions) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	tail := "all"
	if opts.Tail > 0 {
		tail = fmt.Sprintf("%d", opts.Tail)
	}
	rc, err := e.client.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if client.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for %s: %w", name, err)
	}
	defer rc.Close()

	var out strings.Builder
	w := chunkWriter(func(b []byte) { out.Write(b) })
	if _, err := stdcopy.StdCopy(w, w, rc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read logs for %s: %w", name, err)
	}
	return []byte(out.String()), nil
}

func (e *DockerEngine) GetStatus(ctx context.Context, name string) (*types.ContainerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	info, err := e.client.ContainerInspect(ctx, name)
	if client.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	status := &types.ContainerStatus{}
	if info.State != nil {
		status.Running = info.State.Running
		if !info.State.Running {
			code := info.State.ExitCode
			status.ExitCode = &code
		}
		status.StartedAt = parseDockerTime(info.State.StartedAt)
		status.FinishedAt = parseDockerTime(info.State.FinishedAt)
	}
	return status, nil
}

// parseDockerTime parses docker's RFC3339Nano state timestamps, mapping the
// zero sentinel ("0001-01-01T00:00:00Z") to nil.
func parseDockerTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

func (e *DockerEngine) GetStats(ctx context.Context, name string) (*types.ContainerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	// stream=false makes the daemon take the two samples needed for the
	// CPU delta; one-shot would leave precpu empty.
	resp, err := e.client.ContainerStats(ctx, name, false)
	if client.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sample stats for %s: %w", name, err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode stats for %s: %w", name, err)
	}

	const mb = 1024 * 1024
	usage := raw.MemoryStats.Usage
	// Page cache counts against usage but is reclaimable; subtract it the
	// way the docker CLI does.
	if inactive, ok := raw.MemoryStats.Stats["inactive_file"]; ok && inactive < usage {
		usage -= inactive
	}
	stats := &types.ContainerStats{
		MemMB:      float64(usage) / mb,
		MemLimitMB: float64(raw.MemoryStats.Limit) / mb,
		CPUPct:     dockerCPUPercent(&raw),
	}
	if raw.MemoryStats.Limit > 0 {
		stats.MemPct = float64(usage) / float64(raw.MemoryStats.Limit) * 100
	}
	return stats, nil
}

// dockerCPUPercent is the docker CLI's delta formula.
func dockerCPUPercent(s *container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || sysDelta <= 0 {
		return 0
	}
	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}
	return cpuDelta / sysDelta * online * 100
}

func (e *DockerEngine) ListByPrefix(ctx context.Context, prefix string) ([]types.ContainerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	// The docker name filter matches substrings; re-check the prefix on
	// the trimmed names.
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var out []types.ContainerSummary
	for _, c := range list {
		for _, n := range c.Names {
			n = strings.TrimPrefix(n, "/")
			if !strings.HasPrefix(n, prefix) {
				continue
			}
			out = append(out, types.ContainerSummary{
				Name:      n,
				Running:   c.State == "running",
				CreatedAt: time.Unix(c.Created, 0).UTC(),
			})
			break
		}
	}
	return out, nil
}

func (e *DockerEngine) Kill(ctx context.Context, name string) {
	if err := e.client.ContainerKill(ctx, name, "KILL"); err != nil && !client.IsErrNotFound(err) {
		// Already-stopped containers refuse the signal; removal below
		// still applies.
		e.logger.Debug().Err(err).Str("container", name).Msg("kill signal not delivered")
	}
	if err := e.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		e.logger.Warn().Err(err).Str("container", name).Msg("failed to remove container")
	}
}
