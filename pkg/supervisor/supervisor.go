package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/notify"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/security"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/types"
)

// Sentinel errors for the start pre-conditions. The API layer maps these to
// user-facing messages; everything else is an internal failure.
var (
	ErrEmptyPrompt   = errors.New("prompt must not be empty")
	ErrNoCredentials = errors.New("no assistant credentials available")
	ErrImageMissing  = errors.New("job container image not found")
	ErrActiveJob     = errors.New("session already has an active job")
	ErrJobNotFound   = errors.New("job not found")
)

// Config holds the supervisor's tunables. All fields have working zero-value
// substitutes except Image.
type Config struct {
	// Image is the job container image; checked on every start.
	Image string

	// HasCredentials is the authentication capability flag. Discovery
	// happens outside the core; the supervisor only enforces the flag.
	HasCredentials bool

	// CredentialSource, when non-empty, is copied into the session's
	// credential sink before each start.
	CredentialSource string

	// ContainerEnv is extra environment passed to every job container
	// (for example a pass-through OAuth token).
	ContainerEnv []string

	// StartupTimeout kills a job that produced no output at all within
	// the window. Zero disables.
	StartupTimeout time.Duration

	// IdleOutputTimeout kills a job whose output stalls mid-run. Zero
	// disables.
	IdleOutputTimeout time.Duration

	// IdleTimeout is the session idle cutoff consulted by Cleanup.
	IdleTimeout time.Duration

	// TailBytes bounds the tail attached to status reports.
	TailBytes int
}

func (c Config) tailBytes() int {
	if c.TailBytes <= 0 {
		return 500
	}
	return c.TailBytes
}

// Supervisor owns the job lifecycle: it starts containers, spawns one
// watcher per running job, performs the terminal transitions, and answers
// the inspection operations.
type Supervisor struct {
	cfg      Config
	store    storage.Store
	runtime  runtime.Runtime
	notifier notify.Notifier
	broker   *events.Broker
	logger   zerolog.Logger

	// watcherCtx outlives API requests; watchers run on it so a finished
	// RPC does not tear down a live job.
	watcherCtx    context.Context
	cancelWatcher context.CancelFunc
	wg            sync.WaitGroup
}

// New creates a supervisor over its collaborators.
func New(cfg Config, store storage.Store, rt runtime.Runtime, notifier notify.Notifier, broker *events.Broker) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:           cfg,
		store:         store,
		runtime:       rt,
		notifier:      notifier,
		broker:        broker,
		logger:        log.WithComponent("supervisor"),
		watcherCtx:    ctx,
		cancelWatcher: cancel,
	}
}

// StartResult is the result of a successful start.
type StartResult struct {
	JobID      string
	SessionKey string
	Status     types.JobStatus
}

// Start launches a new job for the session. Pre-condition failures leave no
// state behind; a failure after job creation is recorded on the job record
// and propagated.
func (s *Supervisor) Start(ctx context.Context, prompt, sessionKey string) (*StartResult, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if !s.cfg.HasCredentials {
		return nil, ErrNoCredentials
	}
	ok, err := s.runtime.CheckImage(ctx)
	if err != nil {
		return nil, fmt.Errorf("check image: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImageMissing, s.cfg.Image)
	}

	if sessionKey == "" {
		sessionKey = uuid.New().String()
	}

	sess, err := s.store.GetSession(sessionKey)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		if sess, err = s.store.CreateSession(sessionKey); err != nil {
			return nil, err
		}
		s.publish(events.EventSessionCreated, sessionKey, "", "session created")
	}

	active, err := s.store.GetActiveJob(sessionKey)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrActiveJob, active.ID)
	}

	if s.cfg.CredentialSource != "" {
		if err := security.Materialize(s.cfg.CredentialSource, s.store.CredentialDir(sessionKey)); err != nil {
			return nil, fmt.Errorf("materialize credentials: %w", err)
		}
	}

	containerName := runtime.ContainerNameForSession(sessionKey)
	job, err := s.store.CreateJob(sessionKey, prompt, containerName)
	if err != nil {
		return nil, err
	}

	opts := runtime.StartOptions{
		ContainerName:   containerName,
		SessionKey:      sessionKey,
		Prompt:          prompt,
		WorkspacePath:   s.store.WorkspaceDir(sessionKey),
		ResumeSessionID: sess.AssistantSessionID,
		Env:             s.cfg.ContainerEnv,
	}
	if s.cfg.CredentialSource != "" {
		opts.CredentialsPath = s.store.CredentialDir(sessionKey)
	}

	if _, err := s.runtime.StartDetached(ctx, opts); err != nil {
		now := time.Now().UTC()
		if _, uerr := s.store.UpdateJob(sessionKey, job.ID, func(j *types.Job) error {
			j.Status = types.JobStatusFailed
			j.CompletedAt = &now
			j.ErrorKind = types.ErrorKindSpawnFailed
			j.ErrorMessage = err.Error()
			return nil
		}); uerr != nil {
			s.logger.Error().Err(uerr).Str("job_id", job.ID).Msg("failed to record spawn failure")
		}
		return nil, fmt.Errorf("start container: %w", err)
	}

	now := time.Now().UTC()
	if _, err := s.store.UpdateJob(sessionKey, job.ID, func(j *types.Job) error {
		j.Status = types.JobStatusRunning
		j.StartedAt = &now
		return nil
	}); err != nil {
		return nil, err
	}
	if err := s.store.SetActiveJob(sessionKey, job.ID); err != nil {
		return nil, err
	}

	s.publish(events.EventJobStarted, sessionKey, job.ID, "job started")
	s.logger.Info().
		Str("session_key", sessionKey).
		Str("job_id", job.ID).
		Str("container", containerName).
		Msg("job started")

	w := &watcher{
		sup:           s,
		sessionKey:    sessionKey,
		jobID:         job.ID,
		containerName: containerName,
		startedAt:     now,
		logger:        s.logger.With().Str("job_id", job.ID).Logger(),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(s.watcherCtx)
	}()

	return &StartResult{
		JobID:      job.ID,
		SessionKey: sessionKey,
		Status:     types.JobStatusRunning,
	}, nil
}

// Shutdown waits for live watchers to finish, bounded by ctx. Containers are
// left running; the next start-up's reconciler adopts them.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancelWatcher()
		return ctx.Err()
	}
}

func (s *Supervisor) publish(t events.EventType, sessionKey, jobID, msg string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:       t,
		SessionKey: sessionKey,
		JobID:      jobID,
		Message:    msg,
	})
}

// findJob resolves a job by ID. With a session key the lookup is direct;
// without one, sessions are scanned linearly (the set is small and bounded
// by active users).
func (s *Supervisor) findJob(jobID, sessionKey string) (*types.Job, error) {
	if sessionKey != "" {
		job, err := s.store.GetJob(sessionKey, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return job, nil
	}

	sessions, err := s.store.ListSessions()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		job, err := s.store.GetJob(sess.SessionKey, jobID)
		if err != nil {
			continue
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}
