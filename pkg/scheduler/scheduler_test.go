package scheduler

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchlabs/hutch/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
	os.Exit(m.Run())
}

func TestInvalidScheduleRejected(t *testing.T) {
	_, err := New("not a schedule", func(bool) ([]string, error) { return nil, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cleanup schedule")
}

func TestCleanupFiresOnSchedule(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var sawDelete bool

	s, err := New("@every 10ms", func(deleteWorkspaces bool) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		sawDelete = sawDelete || deleteWorkspaces
		return []string{"idle-key"}, nil
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sawDelete, "scheduled cleanup must never delete workspaces")
}

func TestStopHaltsFiring(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s, err := New("@every 10ms", func(bool) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil, nil
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, calls)
}
