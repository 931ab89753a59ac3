package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
)

// CleanupFunc removes idle sessions and reports which keys went away.
// Workspaces are never touched from the schedule; reclaiming user code is a
// deliberate, manual act.
type CleanupFunc func(deleteWorkspaces bool) ([]string, error)

// Scheduler runs idle-session cleanup on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	cleanup CleanupFunc
	logger  zerolog.Logger
}

// New creates a scheduler that invokes cleanup on the given cron expression
// (standard five-field syntax or the @every form).
func New(schedule string, cleanup CleanupFunc) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		cleanup: cleanup,
		logger:  log.WithComponent("scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the cron loop. Entries fire on their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("cleanup scheduler started")
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("cleanup scheduler stopped")
}

func (s *Scheduler) run() {
	removed, err := s.cleanup(false)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scheduled cleanup failed")
		return
	}
	if len(removed) > 0 {
		s.logger.Info().Strs("session_keys", removed).Msg("scheduled cleanup removed idle sessions")
	}
}
