package security

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// defaultSourceDir is the assistant CLI's credential directory,
	// relative to the user's home.
	defaultSourceDir = ".claude"

	// TokenEnvVar carries a long-lived OAuth token. When set, it is
	// passed through to job containers and no credential files are
	// required on the host.
	TokenEnvVar = "CLAUDE_CODE_OAUTH_TOKEN"
)

// DefaultSourceDir returns the host credential directory (~/.claude).
func DefaultSourceDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultSourceDir), nil
}

// SourceUsable reports whether dir exists and holds at least one regular
// file. An empty directory cannot authenticate anything.
func SourceUsable(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return true
		}
		if entry.IsDir() {
			if SourceUsable(filepath.Join(dir, entry.Name())) {
				return true
			}
		}
	}
	return false
}

// HasToken reports whether the OAuth token environment variable is set.
func HasToken() bool {
	return os.Getenv(TokenEnvVar) != ""
}

// Token returns the OAuth token from the environment, empty when unset.
func Token() string {
	return os.Getenv(TokenEnvVar)
}

// Materialize copies the credential source tree into dst. The contents are
// opaque; only permissions matter: directories become 0700 and files 0600,
// whatever the source had. Symlinks and other irregular entries are skipped.
// Existing files in dst are overwritten, which refreshes stale tokens on the
// next job start.
func Materialize(src, dst string) error {
	if err := os.MkdirAll(dst, 0700); err != nil {
		return fmt.Errorf("failed to create credential sink: %w", err)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk credential source: %w", err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, 0700); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
		case d.Type().IsRegular():
			if err := copyFile(path, target); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
