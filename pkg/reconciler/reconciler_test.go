package reconciler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
	os.Exit(m.Run())
}

type fakeRuntime struct {
	mu         sync.Mutex
	containers []types.ContainerSummary
	statuses   map[string]*types.ContainerStatus
	logs       map[string][]byte
	killed     []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		statuses: make(map[string]*types.ContainerStatus),
		logs:     make(map[string][]byte),
	}
}

func (r *fakeRuntime) Ping(ctx context.Context) error { return nil }

func (r *fakeRuntime) CheckImage(ctx context.Context) (bool, error) { return true, nil }

func (r *fakeRuntime) StartDetached(ctx context.Context, opts runtime.StartOptions) (string, error) {
	return "", nil
}

func (r *fakeRuntime) StreamLogs(ctx context.Context, name string, onChunk func([]byte)) (int, error) {
	return 0, nil
}

func (r *fakeRuntime) GetLogs(ctx context.Context, name string, opts runtime.LogOptions) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[name], nil
}

func (r *fakeRuntime) GetStatus(ctx context.Context, name string) (*types.ContainerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[name], nil
}

func (r *fakeRuntime) GetStats(ctx context.Context, name string) (*types.ContainerStats, error) {
	return nil, nil
}

func (r *fakeRuntime) ListByPrefix(ctx context.Context, prefix string) ([]types.ContainerSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ContainerSummary(nil), r.containers...), nil
}

func (r *fakeRuntime) Kill(ctx context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killed = append(r.killed, name)
}

func (r *fakeRuntime) Close() error { return nil }

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir+"/sessions", dir+"/workspaces")
	require.NoError(t, err)
	return store
}

func seedRunningJob(t *testing.T, store storage.Store, key string) *types.Job {
	t.Helper()
	_, err := store.CreateSession(key)
	require.NoError(t, err)
	job, err := store.CreateJob(key, "prompt", runtime.ContainerNameForSession(key))
	require.NoError(t, err)
	started := time.Now().UTC().Add(-time.Minute)
	_, err = store.UpdateJob(key, job.ID, func(j *types.Job) error {
		j.Status = types.JobStatusRunning
		j.StartedAt = &started
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.SetActiveJob(key, job.ID))
	return job
}

func TestAdoptsRunningJob(t *testing.T) {
	store := newTestStore(t)
	fr := newFakeRuntime()
	job := seedRunningJob(t, store, "alice")
	fr.containers = []types.ContainerSummary{{Name: "claude-alice", Running: true}}

	out := New(store, fr).Run(context.Background())
	assert.Equal(t, Outcome{Adopted: 1}, out)
	assert.Empty(t, fr.killed)

	stored, err := store.GetJob("alice", job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, stored.Status)
}

func TestFinalizesExitedJob(t *testing.T) {
	store := newTestStore(t)
	fr := newFakeRuntime()
	job := seedRunningJob(t, store, "bob")

	exit := 0
	finished := time.Now().UTC().Add(-10 * time.Second)
	fr.containers = []types.ContainerSummary{{Name: "claude-bob", Running: false}}
	fr.statuses["claude-bob"] = &types.ContainerStatus{ExitCode: &exit, FinishedAt: &finished}
	fr.logs["claude-bob"] = []byte(
		`{"event":{"type":"content_block_delta","delta":{"text":"recovered "}}}` + "\n" +
			`{"event":{"type":"content_block_delta","delta":{"text":"text"}}}` + "\n")

	out := New(store, fr).Run(context.Background())
	assert.Equal(t, Outcome{Finalized: 1}, out)
	assert.Equal(t, []string{"claude-bob"}, fr.killed)

	stored, err := store.GetJob("bob", job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.WithinDuration(t, finished, *stored.CompletedAt, time.Second)

	chunk, err := store.ReadJobOutput("bob", job.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "recovered text", string(chunk.Content))

	sess, err := store.GetSession("bob")
	require.NoError(t, err)
	assert.Empty(t, sess.ActiveJobID)
}

func TestFinalizesOOMKilledJob(t *testing.T) {
	store := newTestStore(t)
	fr := newFakeRuntime()
	job := seedRunningJob(t, store, "carol")

	exit := 137
	fr.containers = []types.ContainerSummary{{Name: "claude-carol", Running: false}}
	fr.statuses["claude-carol"] = &types.ContainerStatus{ExitCode: &exit}

	out := New(store, fr).Run(context.Background())
	assert.Equal(t, Outcome{Finalized: 1}, out)

	stored, err := store.GetJob("carol", job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, stored.Status)
	assert.Equal(t, types.ErrorKindOOM, stored.ErrorKind)
}

func TestRemovesStaleContainers(t *testing.T) {
	store := newTestStore(t)
	fr := newFakeRuntime()

	// No session record at all.
	fr.containers = []types.ContainerSummary{{Name: "claude-ghost", Running: true}}

	// Session exists but its job already finished.
	_, err := store.CreateSession("dana")
	require.NoError(t, err)
	job, err := store.CreateJob("dana", "done", "claude-dana")
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = store.UpdateJob("dana", job.ID, func(j *types.Job) error {
		j.Status = types.JobStatusCompleted
		j.CompletedAt = &now
		return nil
	})
	require.NoError(t, err)
	fr.containers = append(fr.containers, types.ContainerSummary{Name: "claude-dana", Running: false})

	out := New(store, fr).Run(context.Background())
	assert.Equal(t, Outcome{Removed: 2}, out)
	assert.ElementsMatch(t, []string{"claude-ghost", "claude-dana"}, fr.killed)
}

func TestSkipsForeignContainers(t *testing.T) {
	store := newTestStore(t)
	fr := newFakeRuntime()
	fr.containers = []types.ContainerSummary{{Name: "postgres", Running: true}}

	out := New(store, fr).Run(context.Background())
	assert.Equal(t, Outcome{Skipped: 1}, out)
	assert.Empty(t, fr.killed)
}
