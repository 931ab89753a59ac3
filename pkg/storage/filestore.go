package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/types"
	"github.com/hutchlabs/hutch/pkg/workspace"
)

// FileStore implements Store on plain files. Layout under sessionsDir:
//
//	<key>/session.json          pretty-printed session record
//	<key>/.claude/              opaque credential sink (0700)
//	<key>/jobs/<jobId>.json     pretty-printed job record
//	<key>/jobs/<jobId>.log      append-only output log
//
// Records that can be read concurrently are replaced by temp-file + atomic
// rename; readers always observe a complete record. Output logs are written
// with O_APPEND and their mtime is the authoritative last-output time.
type FileStore struct {
	sessionsDir string
	workspaces  *workspace.Manager
	logger      zerolog.Logger
}

// NewFileStore creates a file-backed store rooted at sessionsDir, with
// workspaces managed under workspacesDir.
func NewFileStore(sessionsDir, workspacesDir string) (*FileStore, error) {
	if sessionsDir == "" {
		return nil, fmt.Errorf("sessions directory must not be empty")
	}
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	ws, err := workspace.NewManager(workspacesDir)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		sessionsDir: sessionsDir,
		workspaces:  ws,
		logger:      log.WithComponent("storage"),
	}, nil
}

// Path helpers. Session keys are opaque caller strings; validateKey rejects
// anything that cannot safely be a single directory name.

func (s *FileStore) sessionDir(key string) string {
	return filepath.Join(s.sessionsDir, key)
}

func (s *FileStore) sessionFile(key string) string {
	return filepath.Join(s.sessionDir(key), "session.json")
}

func (s *FileStore) jobsDir(key string) string {
	return filepath.Join(s.sessionDir(key), "jobs")
}

func (s *FileStore) jobFile(key, jobID string) string {
	return filepath.Join(s.jobsDir(key), jobID+".json")
}

func (s *FileStore) jobLogFile(key, jobID string) string {
	return filepath.Join(s.jobsDir(key), jobID+".log")
}

// CredentialDir returns the session's opaque credential sink path.
func (s *FileStore) CredentialDir(key string) string {
	return filepath.Join(s.sessionDir(key), ".claude")
}

// WorkspaceDir returns the session's workspace path without creating it.
func (s *FileStore) WorkspaceDir(key string) string {
	return s.workspaces.Path(key)
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSessionKey, key)
	}
	if strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidSessionKey, key)
	}
	return nil
}

// writeRecord writes v as pretty-printed JSON via a uniquely named sibling
// temp file and an atomic rename. Concurrent writers race safely: the last
// rename wins and readers never see a partial record.
func writeRecord(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record into place: %w", err)
	}
	return nil
}

// Session operations

func (s *FileStore) GetSession(key string) (*types.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.sessionFile(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session record: %w", err)
	}
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session record %s: %w", key, err)
	}
	return &sess, nil
}

func (s *FileStore) CreateSession(key string) (*types.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.jobsDir(key), 0755); err != nil {
		return nil, fmt.Errorf("create session directories: %w", err)
	}
	// Credential sink is owner-only; it may receive OAuth material.
	if err := os.MkdirAll(s.CredentialDir(key), 0700); err != nil {
		return nil, fmt.Errorf("create credential sink: %w", err)
	}
	if _, err := s.workspaces.Ensure(key); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &types.Session{
		SessionKey:   key,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := writeRecord(s.sessionFile(key), sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *FileStore) GetOrCreateSession(key string) (*types.Session, error) {
	sess, err := s.GetSession(key)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return s.CreateSession(key)
}

func (s *FileStore) UpdateSession(key, assistantSessionID string) (*types.Session, error) {
	sess, err := s.GetSession(key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if assistantSessionID != "" {
		sess.AssistantSessionID = assistantSessionID
	}
	sess.LastActivity = time.Now().UTC()
	sess.MessageCount++
	if err := writeRecord(s.sessionFile(key), sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *FileStore) SetActiveJob(key, jobID string) error {
	sess, err := s.GetSession(key)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	// Setting over a different live pointer must fail fast; only the
	// holder clears it back to empty.
	if jobID != "" && sess.ActiveJobID != "" && sess.ActiveJobID != jobID {
		return fmt.Errorf("%w: %s", ErrActiveJobExists, sess.ActiveJobID)
	}
	sess.ActiveJobID = jobID
	sess.LastActivity = time.Now().UTC()
	return writeRecord(s.sessionFile(key), sess)
}

func (s *FileStore) DeleteSession(key string) {
	if err := validateKey(key); err != nil {
		s.logger.Warn().Err(err).Str("session_key", key).Msg("refusing session delete")
		return
	}
	if err := os.RemoveAll(s.sessionDir(key)); err != nil {
		s.logger.Warn().Err(err).Str("session_key", key).Msg("failed to delete session directory")
	}
}

func (s *FileStore) DeleteWorkspace(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.workspaces.Remove(key)
}

func (s *FileStore) ListSessions() ([]*types.Session, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions directory: %w", err)
	}
	var sessions []*types.Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := s.GetSession(entry.Name())
		if err != nil || sess == nil {
			// Unreadable or half-created entries are skipped, not fatal.
			if err != nil {
				s.logger.Debug().Err(err).Str("session_key", entry.Name()).Msg("skipping unreadable session")
			}
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *FileStore) CleanupIdleSessions(maxIdle time.Duration, deleteWorkspaces bool) ([]string, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-maxIdle)
	var removed []string
	for _, sess := range sessions {
		if sess.LastActivity.After(cutoff) {
			continue
		}
		s.DeleteSession(sess.SessionKey)
		if deleteWorkspaces {
			if err := s.workspaces.Remove(sess.SessionKey); err != nil {
				s.logger.Warn().Err(err).Str("session_key", sess.SessionKey).Msg("failed to delete workspace")
			}
		}
		removed = append(removed, sess.SessionKey)
	}
	return removed, nil
}

// Job operations

func (s *FileStore) CreateJob(key, prompt, containerName string) (*types.Job, error) {
	sess, err := s.GetSession(key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if err := os.MkdirAll(s.jobsDir(key), 0755); err != nil {
		return nil, fmt.Errorf("create jobs directory: %w", err)
	}

	jobID := uuid.New().String()
	logPath := s.jobLogFile(key, jobID)
	// The output log exists from birth so its mtime is always meaningful.
	if err := os.WriteFile(logPath, nil, 0644); err != nil {
		return nil, fmt.Errorf("create output log: %w", err)
	}

	job := &types.Job{
		ID:            jobID,
		SessionKey:    key,
		ContainerName: containerName,
		Status:        types.JobStatusPending,
		Prompt:        prompt,
		CreatedAt:     time.Now().UTC(),
		OutputFile:    logPath,
	}
	if err := writeRecord(s.jobFile(key, jobID), job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *FileStore) GetJob(key, jobID string) (*types.Job, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if jobID == "" || strings.ContainsAny(jobID, "/\\\x00") {
		return nil, nil
	}
	path := s.jobFile(key, jobID)

	// A concurrent writer may be mid-rename; empty reads and parse
	// failures get three retries with growing backoff. A missing file is
	// definitive absence.
	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			lastErr = err
			continue
		}
		if len(data) == 0 {
			lastErr = fmt.Errorf("empty job record")
			continue
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			lastErr = fmt.Errorf("parse job record: %w", err)
			continue
		}
		return &job, nil
	}
	return nil, fmt.Errorf("read job %s/%s: %w", key, jobID, lastErr)
}

// UpdateJob applies mutate to a fresh read of the job record and writes the
// result atomically. The re-read is what lets callers enforce status
// monotonicity: mutate sees the current record and can refuse the write by
// returning an error.
func (s *FileStore) UpdateJob(key, jobID string, mutate func(*types.Job) error) (*types.Job, error) {
	job, err := s.GetJob(key, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, key, jobID)
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	if err := writeRecord(s.jobFile(key, jobID), job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *FileStore) ListJobs(key string) ([]*types.Job, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.jobsDir(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs directory: %w", err)
	}
	var jobs []*types.Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		job, err := s.GetJob(key, strings.TrimSuffix(name, ".json"))
		if err != nil || job == nil {
			if err != nil {
				s.logger.Debug().Err(err).Str("session_key", key).Msg("skipping unreadable job record")
			}
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *FileStore) GetActiveJob(key string) (*types.Job, error) {
	sess, err := s.GetSession(key)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.ActiveJobID == "" {
		return nil, nil
	}
	return s.GetJob(key, sess.ActiveJobID)
}

// Output log operations

// AppendJobOutput appends bytes to the job's output log. It deliberately
// does not touch the job record: the log's mtime carries the last-output
// time and its size is read on demand, keeping the hot path record-free.
func (s *FileStore) AppendJobOutput(key, jobID string, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.jobLogFile(key, jobID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open output log: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("append output: %w", err)
	}
	return f.Close()
}

func (s *FileStore) ReadJobOutput(key, jobID string, offset int64, limit int) (*types.OutputChunk, error) {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	if offset < 0 {
		offset = 0
	}
	f, err := os.Open(s.jobLogFile(key, jobID))
	if os.IsNotExist(err) {
		return &types.OutputChunk{Offset: offset}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat output log: %w", err)
	}
	chunk := &types.OutputChunk{Offset: offset, TotalSize: info.Size()}
	if offset >= chunk.TotalSize {
		return chunk, nil
	}

	want := chunk.TotalSize - offset
	if want > int64(limit) {
		want = int64(limit)
	}
	buf := make([]byte, want)
	n, err := f.ReadAt(buf, offset)
	if n == 0 && err != nil && err != io.EOF {
		return nil, fmt.Errorf("read output log: %w", err)
	}
	chunk.Content = buf[:n]
	chunk.BytesRead = n
	chunk.HasMore = offset+int64(n) < chunk.TotalSize
	return chunk, nil
}

func (s *FileStore) ReadJobOutputTail(key, jobID string, tailBytes int) (*types.OutputTail, error) {
	if tailBytes < 0 {
		tailBytes = 0
	}
	f, err := os.Open(s.jobLogFile(key, jobID))
	if os.IsNotExist(err) {
		return &types.OutputTail{LastOutputSecondsAgo: -1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat output log: %w", err)
	}
	secondsAgo := int64(time.Since(info.ModTime()).Seconds())
	if secondsAgo < 0 {
		secondsAgo = 0
	}
	tail := &types.OutputTail{
		TotalSize:            info.Size(),
		LastOutputSecondsAgo: secondsAgo,
	}
	if tail.TotalSize == 0 || tailBytes == 0 {
		return tail, nil
	}

	if tail.TotalSize <= int64(tailBytes) {
		buf := make([]byte, tail.TotalSize)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read output log: %w", err)
		}
		tail.Tail = string(buf)
		return tail, nil
	}

	buf := make([]byte, tailBytes)
	if _, err := f.ReadAt(buf, tail.TotalSize-int64(tailBytes)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read output log tail: %w", err)
	}
	tail.Tail = "..." + string(buf)
	return tail, nil
}

// Close satisfies Store. The file store holds no open handles between calls.
func (s *FileStore) Close() error {
	return nil
}
