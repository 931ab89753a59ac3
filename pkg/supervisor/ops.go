package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/types"
)

// CancelResult reports what Cancel did.
type CancelResult struct {
	JobID           string
	SessionKey      string
	Status          types.JobStatus
	AlreadyTerminal bool
}

// Cancel stops a job's container and forces the cancelled transition. It is
// idempotent: cancelling a job that already reached a terminal status is a
// no-op reported as AlreadyTerminal, never an error.
func (s *Supervisor) Cancel(ctx context.Context, jobID, sessionKey string) (*CancelResult, error) {
	job, err := s.findJob(jobID, sessionKey)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return &CancelResult{JobID: job.ID, SessionKey: job.SessionKey, Status: job.Status, AlreadyTerminal: true}, nil
	}

	// Synchronous with respect to the kill: when Cancel returns, the
	// container has been told to terminate.
	s.runtime.Kill(ctx, job.ContainerName)

	now := time.Now().UTC()
	updated, err := s.store.UpdateJob(job.SessionKey, job.ID, func(j *types.Job) error {
		if j.IsTerminal() {
			return errTerminalRace
		}
		j.Status = types.JobStatusCancelled
		j.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errTerminalRace) {
		// The watcher finished between our read and the write; its
		// record stands.
		if fresh, gerr := s.store.GetJob(job.SessionKey, job.ID); gerr == nil && fresh != nil {
			job = fresh
		}
		return &CancelResult{JobID: job.ID, SessionKey: job.SessionKey, Status: job.Status, AlreadyTerminal: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.SetActiveJob(job.SessionKey, ""); err != nil {
		s.logger.Warn().Err(err).Str("session_key", job.SessionKey).Msg("failed to clear active job pointer")
	}

	start := updated.CreatedAt
	if updated.StartedAt != nil {
		start = *updated.StartedAt
	}
	var outputSize int64
	if tail, terr := s.store.ReadJobOutputTail(job.SessionKey, job.ID, 0); terr == nil {
		outputSize = tail.TotalSize
	}

	s.logger.Info().Str("session_key", job.SessionKey).Str("job_id", job.ID).Msg("job cancelled")
	s.publish(events.EventJobCancelled, job.SessionKey, job.ID, "job cancelled")
	s.sendNotification(types.NotificationPayload{
		JobID:          job.ID,
		SessionKey:     job.SessionKey,
		Status:         types.JobStatusCancelled,
		ElapsedSeconds: int64(now.Sub(start).Seconds()),
		OutputSize:     outputSize,
	})

	return &CancelResult{JobID: job.ID, SessionKey: job.SessionKey, Status: types.JobStatusCancelled}, nil
}

// activityWindow is how recently the output log must have been touched for a
// running job to count as active.
const activityWindow = 10 * time.Second

// processingCPUPct is the CPU threshold above which a quiet job counts as
// processing rather than idle.
const processingCPUPct = 20.0

// Status inspects a job. For a running job it also reconciles against the
// actual container state: if the container stopped and the watcher never
// recorded it (a dead watcher), the terminal transition is performed here —
// the status path is self-healing.
func (s *Supervisor) Status(ctx context.Context, jobID, sessionKey string) (*types.JobStatusReport, error) {
	job, err := s.findJob(jobID, sessionKey)
	if err != nil {
		return nil, err
	}

	var liveStats *types.ContainerStats
	if job.Status == types.JobStatusRunning {
		st, serr := s.runtime.GetStatus(ctx, job.ContainerName)
		switch {
		case serr != nil:
			s.logger.Warn().Err(serr).Str("job_id", job.ID).Msg("container status unavailable")
		case st == nil || !st.Running:
			job = s.healTerminal(job, st)
		default:
			if sampled, gerr := s.runtime.GetStats(ctx, job.ContainerName); gerr == nil && sampled != nil {
				liveStats = sampled
			}
		}
	}

	tail, err := s.store.ReadJobOutputTail(job.SessionKey, job.ID, s.cfg.tailBytes())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start := job.CreatedAt
	if job.StartedAt != nil {
		start = *job.StartedAt
	}
	end := now
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}

	report := &types.JobStatusReport{
		JobID:                job.ID,
		SessionKey:           job.SessionKey,
		Status:               job.Status,
		ElapsedSeconds:       int64(end.Sub(start).Seconds()),
		OutputSize:           tail.TotalSize,
		LastOutputSecondsAgo: tail.LastOutputSecondsAgo,
		TailOutput:           tail.Tail,
		ExitCode:             job.ExitCode,
		Error:                job.ErrorMessage,
		Metrics:              job.Metrics,
	}
	if liveStats != nil {
		report.Metrics = liveStats
	}

	if job.Status == types.JobStatusRunning {
		switch {
		case tail.LastOutputSecondsAgo >= 0 && time.Duration(tail.LastOutputSecondsAgo)*time.Second <= activityWindow:
			report.ActivityState = types.ActivityActive
		case liveStats != nil && liveStats.CPUPct > processingCPUPct:
			report.ActivityState = types.ActivityProcessing
		default:
			report.ActivityState = types.ActivityIdle
		}
	}
	return report, nil
}

// healTerminal mirrors the watcher's classification for a job whose
// container has stopped without a recorded terminal status. No notification
// is sent from this path.
func (s *Supervisor) healTerminal(job *types.Job, st *types.ContainerStatus) *types.Job {
	var (
		status = types.JobStatusFailed
		kind   types.ErrorKind
		msg    string
		code   *int
	)
	switch {
	case st == nil || st.ExitCode == nil:
		kind = types.ErrorKindCrash
		msg = "container disappeared"
	case *st.ExitCode == 137:
		kind = types.ErrorKindOOM
		msg = "container killed (exit code 137)"
		code = st.ExitCode
	case *st.ExitCode != 0:
		kind = types.ErrorKindCrash
		msg = fmt.Sprintf("container exited with code %d", *st.ExitCode)
		code = st.ExitCode
	default:
		status = types.JobStatusCompleted
		code = st.ExitCode
	}

	completed := time.Now().UTC()
	if st != nil && st.FinishedAt != nil {
		completed = *st.FinishedAt
	}

	updated, err := s.store.UpdateJob(job.SessionKey, job.ID, func(j *types.Job) error {
		if j.Status != types.JobStatusRunning {
			return errTerminalRace
		}
		j.Status = status
		j.CompletedAt = &completed
		j.ExitCode = code
		j.ErrorKind = kind
		j.ErrorMessage = msg
		return nil
	})
	if errors.Is(err, errTerminalRace) {
		// The watcher got there first; return its record.
		if fresh, gerr := s.store.GetJob(job.SessionKey, job.ID); gerr == nil && fresh != nil {
			return fresh
		}
		return job
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to self-heal terminal status")
		return job
	}
	if err := s.store.SetActiveJob(job.SessionKey, ""); err != nil {
		s.logger.Warn().Err(err).Str("session_key", job.SessionKey).Msg("failed to clear active job pointer")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Msg("status call healed a stale running job")
	s.publish(eventForStatus(status), job.SessionKey, job.ID, "healed by status reconciliation")
	metrics.JobsFinishedTotal.WithLabelValues(string(status)).Inc()
	return updated
}

// OutputResult pairs a job with one bounded read of its output log.
type OutputResult struct {
	Job   *types.Job
	Chunk *types.OutputChunk
}

// Output reads at most limit bytes of the job's output log from offset.
func (s *Supervisor) Output(ctx context.Context, jobID, sessionKey string, offset int64, limit int) (*OutputResult, error) {
	job, err := s.findJob(jobID, sessionKey)
	if err != nil {
		return nil, err
	}
	chunk, err := s.store.ReadJobOutput(job.SessionKey, job.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &OutputResult{Job: job, Chunk: chunk}, nil
}

// Cleanup removes sessions idle beyond the configured cutoff. Workspaces are
// preserved unless deleteWorkspaces opts in — they hold user code.
func (s *Supervisor) Cleanup(deleteWorkspaces bool) ([]string, error) {
	removed, err := s.store.CleanupIdleSessions(s.cfg.IdleTimeout, deleteWorkspaces)
	for _, key := range removed {
		s.publish(events.EventSessionRemoved, key, "", "idle session removed")
	}
	return removed, err
}

// Sessions lists all sessions enriched with active-job and live-container
// state.
func (s *Supervisor) Sessions(ctx context.Context) ([]types.SessionSummary, error) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		return nil, err
	}

	summaries := make([]types.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summary := types.SessionSummary{
			SessionKey:   sess.SessionKey,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity,
			MessageCount: sess.MessageCount,
			ActiveJobID:  sess.ActiveJobID,
		}
		if sess.ActiveJobID != "" {
			if job, jerr := s.store.GetJob(sess.SessionKey, sess.ActiveJobID); jerr == nil && job != nil {
				summary.JobStatus = job.Status
			}
		}
		if st, serr := s.runtime.GetStatus(ctx, runtime.ContainerNameForSession(sess.SessionKey)); serr == nil && st != nil {
			summary.ContainerRunning = st.Running
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
