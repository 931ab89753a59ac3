package metrics

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
	os.Exit(m.Run())
}

func TestCollectSamplesGauges(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir+"/sessions", dir+"/workspaces")
	require.NoError(t, err)

	_, err = store.CreateSession("a")
	require.NoError(t, err)
	job, err := store.CreateJob("a", "p", "claude-a")
	require.NoError(t, err)
	started := time.Now().UTC()
	_, err = store.UpdateJob("a", job.ID, func(j *types.Job) error {
		j.Status = types.JobStatusRunning
		j.StartedAt = &started
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.SetActiveJob("a", job.ID))

	_, err = store.CreateSession("b")
	require.NoError(t, err)

	c := NewCollector(store, events.NewBroker())
	c.collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(SessionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsTotal.WithLabelValues("running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsTotal.WithLabelValues("completed")))
}

func TestConsumeCountsTerminalEvents(t *testing.T) {
	c := &Collector{}
	before := testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("failed"))

	c.consume(&events.Event{Type: events.EventJobFailed})
	c.consume(&events.Event{Type: events.EventJobStarted}) // not terminal, not counted

	assert.Equal(t, before+1, testutil.ToFloat64(JobsFinishedTotal.WithLabelValues("failed")))
}
