package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Manager owns the per-session workspace directories. A workspace is the
// directory bind-mounted into a session's containers as the working tree.
// It holds user code, so nothing in Hutch removes one implicitly: session
// cleanup leaves workspaces behind unless the caller opts in.
type Manager struct {
	basePath string
}

// NewManager creates a workspace manager rooted at basePath.
func NewManager(basePath string) (*Manager, error) {
	if basePath == "" {
		return nil, fmt.Errorf("workspace base path must not be empty")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspaces directory: %w", err)
	}
	return &Manager{basePath: basePath}, nil
}

// Ensure creates the session's workspace directory if missing and returns
// its path. Idempotent.
func (m *Manager) Ensure(sessionKey string) (string, error) {
	path := m.Path(sessionKey)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return path, nil
}

// Path returns the host path of a session's workspace without creating it.
func (m *Manager) Path(sessionKey string) string {
	return filepath.Join(m.basePath, sessionKey)
}

// Remove deletes a session's workspace and everything in it. Removing an
// absent workspace is not an error.
func (m *Manager) Remove(sessionKey string) error {
	path := m.Path(sessionKey)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // already gone
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete workspace directory: %w", err)
	}
	return nil
}

// Exists reports whether a session's workspace directory is present.
func (m *Manager) Exists(sessionKey string) bool {
	_, err := os.Stat(m.Path(sessionKey))
	return err == nil
}
