package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/stream"
	"github.com/hutchlabs/hutch/pkg/types"
)

// errTerminalRace aborts a terminal write when someone else (cancel, status
// self-healing) already moved the job out of running.
var errTerminalRace = errors.New("job no longer running")

// watcher is the per-job concurrent unit: it owns the running job's log
// stream, its output log, and the terminal transition.
type watcher struct {
	sup           *Supervisor
	sessionKey    string
	jobID         string
	containerName string
	startedAt     time.Time
	logger        zerolog.Logger
}

type streamResult struct {
	exitCode int
	err      error
}

func (w *watcher) run(ctx context.Context) {
	chunks := make(chan []byte, 64)
	resultCh := make(chan streamResult, 1)

	go func() {
		defer close(chunks)
		onChunk := func(b []byte) {
			select {
			case chunks <- b:
			case <-ctx.Done():
			}
		}
		code, err := w.sup.runtime.StreamLogs(ctx, w.containerName, onChunk)
		if err != nil && ctx.Err() == nil {
			// One retry on transport failure; a second failure is
			// classified at terminal time.
			w.logger.Warn().Err(err).Msg("log stream failed, retrying once")
			code, err = w.sup.runtime.StreamLogs(ctx, w.containerName, onChunk)
		}
		resultCh <- streamResult{exitCode: code, err: err}
	}()

	var (
		lb                 stream.LineBuffer
		rateLimit          *stream.RateLimitSignal
		auth               *stream.AuthSignal
		assistantSessionID string
		timeoutKind        types.ErrorKind
		sawOutput          bool
	)

	processLine := func(line []byte) {
		res := stream.ParseLine(line)
		if res.Text != "" {
			if err := w.sup.store.AppendJobOutput(w.sessionKey, w.jobID, []byte(res.Text)); err != nil {
				w.logger.Warn().Err(err).Msg("failed to append output")
			} else {
				metrics.OutputBytesTotal.Add(float64(len(res.Text)))
			}
		}
		// Last signal wins; only the final one matters at terminal time.
		if res.RateLimit != nil {
			rateLimit = res.RateLimit
		}
		if res.Auth != nil {
			auth = res.Auth
		}
		if res.SessionID != "" {
			assistantSessionID = res.SessionID
		}
	}

	// The watchdog starts in the startup window and re-arms with the idle
	// window once output has been seen. Firing kills the container; the
	// stream then ends on its own and classification happens below.
	var watchdog *time.Timer
	var watchdogCh <-chan time.Time
	if w.sup.cfg.StartupTimeout > 0 {
		watchdog = time.NewTimer(w.sup.cfg.StartupTimeout)
		watchdogCh = watchdog.C
	}
	defer func() {
		if watchdog != nil {
			watchdog.Stop()
		}
	}()

receive:
	for {
		select {
		case b, ok := <-chunks:
			if !ok {
				break receive
			}
			for _, line := range lb.Split(b) {
				processLine(line)
			}
			sawOutput = true
			if timeoutKind == "" && watchdog != nil {
				if w.sup.cfg.IdleOutputTimeout > 0 {
					watchdog.Stop()
					watchdog.Reset(w.sup.cfg.IdleOutputTimeout)
				} else {
					watchdog.Stop()
					watchdogCh = nil
				}
			}
		case <-watchdogCh:
			watchdogCh = nil
			if sawOutput {
				timeoutKind = types.ErrorKindIdleTimeout
			} else {
				timeoutKind = types.ErrorKindStartupTimeout
			}
			w.logger.Warn().Str("kind", string(timeoutKind)).Msg("watchdog fired, killing container")
			w.sup.runtime.Kill(ctx, w.containerName)
		case <-ctx.Done():
			// Supervisor shutdown. The container keeps running and the
			// next start-up's reconciler finishes the job.
			return
		}
	}
	if last := lb.Drain(); last != nil {
		processLine(last)
	}

	res := <-resultCh
	w.finish(ctx, res, rateLimit, auth, timeoutKind, assistantSessionID)
}

// finish performs the terminal transition. It re-reads the job first and
// backs off if the job already left running (a cancel won the race).
func (w *watcher) finish(ctx context.Context, res streamResult, rateLimit *stream.RateLimitSignal, auth *stream.AuthSignal, timeoutKind types.ErrorKind, assistantSessionID string) {
	job, err := w.sup.store.GetJob(w.sessionKey, w.jobID)
	if err != nil || job == nil {
		w.logger.Error().Err(err).Msg("failed to reload job at stream end")
		return
	}
	if job.Status != types.JobStatusRunning {
		w.logger.Debug().Str("status", string(job.Status)).Msg("job already terminal, watcher exiting")
		return
	}

	status, kind, msg, exitCode := classifyTerminal(res, rateLimit, auth, timeoutKind)
	now := time.Now().UTC()
	_, err = w.sup.store.UpdateJob(w.sessionKey, w.jobID, func(j *types.Job) error {
		if j.Status != types.JobStatusRunning {
			return errTerminalRace
		}
		j.Status = status
		j.CompletedAt = &now
		j.ExitCode = exitCode
		j.ErrorKind = kind
		j.ErrorMessage = msg
		return nil
	})
	if errors.Is(err, errTerminalRace) {
		return
	}
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to persist terminal status")
		return
	}
	if err := w.sup.store.SetActiveJob(w.sessionKey, ""); err != nil {
		w.logger.Warn().Err(err).Msg("failed to clear active job pointer")
	}
	if assistantSessionID != "" {
		if _, err := w.sup.store.UpdateSession(w.sessionKey, assistantSessionID); err != nil {
			w.logger.Warn().Err(err).Msg("failed to persist assistant session id")
		}
	}

	elapsed := now.Sub(w.startedAt)
	metrics.JobDuration.Observe(elapsed.Seconds())

	var outputSize int64
	if tail, err := w.sup.store.ReadJobOutputTail(w.sessionKey, w.jobID, 0); err == nil {
		outputSize = tail.TotalSize
	}

	w.logger.Info().
		Str("status", string(status)).
		Str("error_kind", string(kind)).
		Int("exit_code", res.exitCode).
		Dur("elapsed", elapsed).
		Msg("job finished")

	w.sup.publish(eventForStatus(status), w.sessionKey, w.jobID, msg)
	w.sup.sendNotification(types.NotificationPayload{
		JobID:          w.jobID,
		SessionKey:     w.sessionKey,
		Status:         status,
		ElapsedSeconds: int64(elapsed.Seconds()),
		OutputSize:     outputSize,
		ExitCode:       exitCode,
		ErrorKind:      kind,
	})
}

// classifyTerminal maps stream outcome to a terminal status. Precedence:
// parser signal, then watchdog kind, then stream failure, then OOM, then
// plain non-zero exit. A rate-limit signal fails the job even on exit 0.
func classifyTerminal(res streamResult, rateLimit *stream.RateLimitSignal, auth *stream.AuthSignal, timeoutKind types.ErrorKind) (types.JobStatus, types.ErrorKind, string, *int) {
	exit := res.exitCode
	code := &exit
	switch {
	case rateLimit != nil:
		msg := fmt.Sprintf("rate limit hit; wait %d minutes (resets at %s)", rateLimit.WaitMinutes, rateLimit.ResetTime)
		return types.JobStatusFailed, types.ErrorKindRateLimit, msg, code
	case auth != nil:
		return types.JobStatusFailed, auth.Kind, auth.Message, code
	case timeoutKind != "":
		// Watchdog kills exit 137; the kind must not read as OOM.
		msg := "no output within startup window"
		if timeoutKind == types.ErrorKindIdleTimeout {
			msg = "output stalled beyond idle window"
		}
		return types.JobStatusFailed, timeoutKind, msg, code
	case res.err != nil:
		return types.JobStatusFailed, types.ErrorKindCrash, "log stream failed: " + res.err.Error(), code
	case exit == 137:
		return types.JobStatusFailed, types.ErrorKindOOM, "container killed (exit code 137)", code
	case exit != 0:
		return types.JobStatusFailed, types.ErrorKindCrash, fmt.Sprintf("container exited with code %d", exit), code
	default:
		return types.JobStatusCompleted, "", "", code
	}
}

func eventForStatus(status types.JobStatus) events.EventType {
	switch status {
	case types.JobStatusCompleted:
		return events.EventJobCompleted
	case types.JobStatusCancelled:
		return events.EventJobCancelled
	default:
		return events.EventJobFailed
	}
}

// sendNotification delivers fire-and-forget: failures are logged and
// counted, never propagated, never retried.
func (s *Supervisor) sendNotification(payload types.NotificationPayload) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, payload); err != nil {
			metrics.NotificationsTotal.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("notification delivery failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	}()
}
