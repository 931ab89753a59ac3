package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/supervisor"
	"github.com/hutchlabs/hutch/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
	os.Exit(m.Run())
}

// stubRuntime satisfies runtime.Runtime with canned answers; the tool layer
// tests only exercise parameter handling and formatting.
type stubRuntime struct {
	pingErr error

	// hold, when set, keeps StreamLogs open so a started job stays
	// running for the duration of a test.
	hold chan struct{}
}

func (r *stubRuntime) Ping(ctx context.Context) error { return r.pingErr }

func (r *stubRuntime) CheckImage(ctx context.Context) (bool, error) { return true, nil }

func (r *stubRuntime) StartDetached(ctx context.Context, opts runtime.StartOptions) (string, error) {
	return "cid", nil
}

func (r *stubRuntime) StreamLogs(ctx context.Context, name string, onChunk func([]byte)) (int, error) {
	if r.hold != nil {
		select {
		case <-r.hold:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, nil
}

func (r *stubRuntime) GetLogs(ctx context.Context, name string, opts runtime.LogOptions) ([]byte, error) {
	return nil, nil
}

func (r *stubRuntime) GetStatus(ctx context.Context, name string) (*types.ContainerStatus, error) {
	return nil, nil
}

func (r *stubRuntime) GetStats(ctx context.Context, name string) (*types.ContainerStats, error) {
	return nil, nil
}

func (r *stubRuntime) ListByPrefix(ctx context.Context, prefix string) ([]types.ContainerSummary, error) {
	return nil, nil
}

func (r *stubRuntime) Kill(ctx context.Context, name string) {}

func (r *stubRuntime) Close() error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, payload types.NotificationPayload) error { return nil }

func newTestSupervisor(t *testing.T) (*supervisor.Supervisor, storage.Store) {
	t.Helper()
	sup, store, _ := newTestSupervisorWithRuntime(t)
	return sup, store
}

func newTestSupervisorWithRuntime(t *testing.T) (*supervisor.Supervisor, storage.Store, *stubRuntime) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir+"/sessions", dir+"/workspaces")
	require.NoError(t, err)
	rt := &stubRuntime{}
	sup := supervisor.New(supervisor.Config{
		Image:          "claude-agent:test",
		HasCredentials: true,
		IdleTimeout:    time.Hour,
	}, store, rt, nopNotifier{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	return sup, store, rt
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestStartRequiresPrompt(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	res, err := handleStart(sup, log.WithComponent("test"))(context.Background(), callRequest("start", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "prompt parameter is required")
}

func TestStartRejectsActiveJob(t *testing.T) {
	sup, _, rt := newTestSupervisorWithRuntime(t)
	rt.hold = make(chan struct{})
	defer close(rt.hold)
	h := handleStart(sup, log.WithComponent("test"))

	res, err := h(context.Background(), callRequest("start", map[string]any{
		"prompt": "first", "session_id": "s1",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "status: running")

	res, err = h(context.Background(), callRequest("start", map[string]any{
		"prompt": "second", "session_id": "s1",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "active job")
}

func TestStatusJobNotFoundIsSoft(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	res, err := handleStatus(sup, log.WithComponent("test"))(context.Background(),
		callRequest("status", map[string]any{"job_id": "missing"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Job not found: missing")
}

func TestStatusRequiresJobID(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	res, err := handleStatus(sup, log.WithComponent("test"))(context.Background(),
		callRequest("status", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestOutputHeaderAndBytes(t *testing.T) {
	sup, store := newTestSupervisor(t)
	_, err := store.CreateSession("s1")
	require.NoError(t, err)
	job, err := store.CreateJob("s1", "p", "claude-s1")
	require.NoError(t, err)
	require.NoError(t, store.AppendJobOutput("s1", job.ID, []byte("hello world")))

	res, err := handleOutput(sup, 1024, log.WithComponent("test"))(context.Background(),
		callRequest("output", map[string]any{"job_id": job.ID, "session_id": "s1", "offset": 6, "limit": 5}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := textOf(t, res)
	assert.Contains(t, text, "bytes 6-11 of 11")
	assert.Contains(t, text, "more: false")
	assert.Contains(t, text, "\nworld")
}

func TestCancelAlreadyTerminalIsSoft(t *testing.T) {
	sup, store := newTestSupervisor(t)
	_, err := store.CreateSession("s1")
	require.NoError(t, err)
	job, err := store.CreateJob("s1", "p", "claude-s1")
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = store.UpdateJob("s1", job.ID, func(j *types.Job) error {
		j.Status = types.JobStatusCompleted
		j.CompletedAt = &now
		return nil
	})
	require.NoError(t, err)

	res, err := handleCancel(sup, log.WithComponent("test"))(context.Background(),
		callRequest("cancel", map[string]any{"job_id": job.ID, "session_id": "s1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "already finished")
}

func TestCleanupReportsNothingToDo(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	res, err := handleCleanup(sup, log.WithComponent("test"))(context.Background(),
		callRequest("cleanup", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "No idle sessions to clean up.", textOf(t, res))
}

func TestSessionsListsState(t *testing.T) {
	sup, store := newTestSupervisor(t)
	_, err := store.CreateSession("s1")
	require.NoError(t, err)

	res, err := handleSessions(sup, log.WithComponent("test"))(context.Background(),
		callRequest("sessions", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "s1")
}

func TestHealthEndpoints(t *testing.T) {
	_, store := newTestSupervisor(t)
	rt := &stubRuntime{}
	hs := NewHealthServer(store, rt, "test")
	srv := httptest.NewServer(hs.mux)
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "test", body.Version)
	})

	t.Run("ready", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body ReadyResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body.Checks["store"])
		assert.Equal(t, "ok", body.Checks["runtime"])
	})

	t.Run("not ready when engine is down", func(t *testing.T) {
		rt.pingErr = context.DeadlineExceeded
		defer func() { rt.pingErr = nil }()

		resp, err := http.Get(srv.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
