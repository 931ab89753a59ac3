package reconciler

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/stream"
	"github.com/hutchlabs/hutch/pkg/types"
)

// Reconciler scans the container runtime once at start-up and brings job
// records back in line with reality: the previous process may have died with
// containers still running or records still marked running.
type Reconciler struct {
	store   storage.Store
	runtime runtime.Runtime
	logger  zerolog.Logger
}

// New creates a reconciler over the store and runtime.
func New(store storage.Store, rt runtime.Runtime) *Reconciler {
	return &Reconciler{
		store:   store,
		runtime: rt,
		logger:  log.WithComponent("reconciler"),
	}
}

// Outcome counts what one pass did.
type Outcome struct {
	Adopted   int
	Finalized int
	Removed   int
	Skipped   int
}

// Run performs one reconciliation pass. It never fails the start-up: every
// per-container error is logged, counted and skipped.
func (r *Reconciler) Run(ctx context.Context) Outcome {
	var out Outcome

	containers, err := r.runtime.ListByPrefix(ctx, runtime.ContainerNamePrefix)
	if err != nil {
		r.logger.Warn().Err(err).Msg("container listing failed, skipping reconciliation")
		return out
	}

	for _, c := range containers {
		switch r.reconcile(ctx, c) {
		case outcomeAdopted:
			out.Adopted++
		case outcomeFinalized:
			out.Finalized++
		case outcomeRemoved:
			out.Removed++
		default:
			out.Skipped++
		}
	}

	r.logger.Info().
		Int("adopted", out.Adopted).
		Int("finalized", out.Finalized).
		Int("removed", out.Removed).
		Int("skipped", out.Skipped).
		Msg("reconciliation pass complete")
	return out
}

type outcome string

const (
	outcomeAdopted   outcome = "adopted"
	outcomeFinalized outcome = "finalized"
	outcomeRemoved   outcome = "removed"
	outcomeSkipped   outcome = "skipped"
)

func (r *Reconciler) reconcile(ctx context.Context, c types.ContainerSummary) outcome {
	res := r.classify(ctx, c)
	metrics.ReconcilerOutcomesTotal.WithLabelValues(string(res)).Inc()
	return res
}

func (r *Reconciler) classify(ctx context.Context, c types.ContainerSummary) outcome {
	key, ok := runtime.SessionKeyFromContainerName(c.Name)
	if !ok {
		return outcomeSkipped
	}
	logger := r.logger.With().Str("container", c.Name).Str("session_key", key).Logger()

	sess, err := r.store.GetSession(key)
	if err != nil {
		logger.Warn().Err(err).Msg("session lookup failed")
		return outcomeSkipped
	}
	if sess == nil {
		// A container we named but have no record of: a leftover from a
		// cleaned-up session. Reclaim it.
		logger.Info().Msg("removing container with no session record")
		r.runtime.Kill(ctx, c.Name)
		return outcomeRemoved
	}

	job, err := r.store.GetActiveJob(key)
	if err != nil {
		logger.Warn().Err(err).Msg("active job lookup failed")
		return outcomeSkipped
	}
	if job == nil || job.IsTerminal() {
		// Session exists but nothing is supposed to be running.
		logger.Info().Msg("removing container with no active job")
		r.runtime.Kill(ctx, c.Name)
		return outcomeRemoved
	}

	if c.Running {
		// The job outlived the previous process. The record already says
		// running; leave both alone and let status polling pick it up.
		logger.Info().Str("job_id", job.ID).Msg("adopted running job")
		return outcomeAdopted
	}

	return r.finalize(ctx, c, job, logger)
}

// finalize settles a job whose container exited while no watcher was alive:
// drain the full transcript into the output log, classify from the exit
// code, record the terminal status. No notification is sent from here; the
// recipient may be long gone.
func (r *Reconciler) finalize(ctx context.Context, c types.ContainerSummary, job *types.Job, logger zerolog.Logger) outcome {
	st, err := r.runtime.GetStatus(ctx, c.Name)
	if err != nil {
		logger.Warn().Err(err).Msg("container inspect failed")
	}

	raw, err := r.runtime.GetLogs(ctx, c.Name, runtime.LogOptions{})
	if err != nil {
		logger.Warn().Err(err).Msg("transcript fetch failed")
	} else if len(raw) > 0 {
		text, terr := stream.ExtractTextFromStream(bytes.NewReader(raw))
		if terr != nil {
			logger.Warn().Err(terr).Msg("transcript extraction failed")
		}
		if text != "" {
			if aerr := r.store.AppendJobOutput(job.SessionKey, job.ID, []byte(text)); aerr != nil {
				logger.Warn().Err(aerr).Msg("failed to append recovered output")
			}
		}
	}

	status := types.JobStatusCompleted
	var kind types.ErrorKind
	var msg string
	var exitCode *int
	if st != nil {
		exitCode = st.ExitCode
	}
	switch {
	case exitCode == nil:
		status = types.JobStatusFailed
		kind = types.ErrorKindCrash
		msg = "container exit code unavailable"
	case *exitCode == 137:
		status = types.JobStatusFailed
		kind = types.ErrorKindOOM
		msg = "container killed (exit code 137)"
	case *exitCode != 0:
		status = types.JobStatusFailed
		kind = types.ErrorKindCrash
		msg = "container exited non-zero"
	}

	completed := time.Now().UTC()
	if st != nil && st.FinishedAt != nil {
		completed = *st.FinishedAt
	}
	if _, err := r.store.UpdateJob(job.SessionKey, job.ID, func(j *types.Job) error {
		if j.IsTerminal() {
			return nil
		}
		j.Status = status
		j.CompletedAt = &completed
		j.ExitCode = exitCode
		j.ErrorKind = kind
		j.ErrorMessage = msg
		return nil
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to record recovered terminal status")
		return outcomeSkipped
	}
	if err := r.store.SetActiveJob(job.SessionKey, ""); err != nil {
		logger.Warn().Err(err).Msg("failed to clear active job pointer")
	}

	// The exited container has served its purpose.
	r.runtime.Kill(ctx, c.Name)

	logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Msg("finalized orphaned job")
	return outcomeFinalized
}
