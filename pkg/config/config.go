package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for every tunable. Timeouts are expressed in seconds because the
// YAML file and the CLI flags speak seconds.
const (
	DefaultImage  = "claude-agent:latest"
	DefaultEngine = "docker"

	DefaultIdleTimeoutSeconds       = 3600
	DefaultStartupTimeoutSeconds    = 120
	DefaultIdleOutputTimeoutSeconds = 600

	DefaultTailBytes        = 500
	DefaultOutputLimitBytes = 64 * 1024

	DefaultStatusBudgetSeconds = 5
	DefaultCleanupSchedule     = "@every 10m"
)

// Config holds all supervisor settings. Zero values mean "unset"; call
// Default() and overlay a file and flags on top rather than constructing
// this struct directly.
type Config struct {
	// SessionsDir holds session records, job records and output logs.
	// A leading ~ expands to the user's home directory.
	SessionsDir string `yaml:"sessionsDir"`

	// WorkspacesDir holds per-session working directories mounted into
	// containers. Survives session cleanup unless explicitly opted in.
	WorkspacesDir string `yaml:"workspacesDir"`

	// Image is the container image each job runs.
	Image string `yaml:"image"`

	// Engine selects the container engine: "docker" or "containerd".
	Engine string `yaml:"engine"`

	// EngineSocket overrides the engine's default socket path.
	EngineSocket string `yaml:"engineSocket"`

	// IdleTimeoutSeconds is the session idle cutoff for cleanup.
	IdleTimeoutSeconds int `yaml:"idleTimeoutSeconds"`

	// StartupTimeoutSeconds kills a job that produced no output at all
	// within the window. 0 disables.
	StartupTimeoutSeconds int `yaml:"startupTimeoutSeconds"`

	// IdleOutputTimeoutSeconds kills a job whose output stalls mid-run.
	// 0 disables.
	IdleOutputTimeoutSeconds int `yaml:"idleOutputTimeoutSeconds"`

	// TailBytes bounds the tail shown by the status operation.
	TailBytes int `yaml:"tailBytes"`

	// OutputLimitBytes is the default read size for the output operation.
	OutputLimitBytes int `yaml:"outputLimitBytes"`

	// StatusBudgetSeconds bounds each runtime introspection call.
	StatusBudgetSeconds int `yaml:"statusBudgetSeconds"`

	// CleanupSchedule is a cron expression for periodic idle-session
	// cleanup. Empty disables the scheduler.
	CleanupSchedule string `yaml:"cleanupSchedule"`

	// WebhookURL receives terminal job notifications. Empty disables.
	WebhookURL string `yaml:"webhookUrl"`

	// HealthAddr is the optional admin HTTP listen address
	// (health, readiness, metrics). Empty disables the listener.
	HealthAddr string `yaml:"healthAddr"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJson"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		SessionsDir:              "~/.hutch/sessions",
		WorkspacesDir:            "~/.hutch/workspaces",
		Image:                    DefaultImage,
		Engine:                   DefaultEngine,
		IdleTimeoutSeconds:       DefaultIdleTimeoutSeconds,
		StartupTimeoutSeconds:    DefaultStartupTimeoutSeconds,
		IdleOutputTimeoutSeconds: DefaultIdleOutputTimeoutSeconds,
		TailBytes:                DefaultTailBytes,
		OutputLimitBytes:         DefaultOutputLimitBytes,
		StatusBudgetSeconds:      DefaultStatusBudgetSeconds,
		CleanupSchedule:          DefaultCleanupSchedule,
		LogLevel:                 "info",
		LogJSON:                  true,
	}
}

// LoadFile overlays settings from a YAML file onto c. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration and expands the directory paths.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("image must not be empty")
	}
	switch c.Engine {
	case "docker", "containerd":
	default:
		return fmt.Errorf("unknown engine %q (want docker or containerd)", c.Engine)
	}
	if c.TailBytes <= 0 {
		return fmt.Errorf("tailBytes must be positive")
	}
	if c.OutputLimitBytes <= 0 {
		return fmt.Errorf("outputLimitBytes must be positive")
	}
	if c.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("idleTimeoutSeconds must be positive")
	}

	var err error
	if c.SessionsDir, err = ExpandPath(c.SessionsDir); err != nil {
		return fmt.Errorf("sessionsDir: %w", err)
	}
	if c.WorkspacesDir, err = ExpandPath(c.WorkspacesDir); err != nil {
		return fmt.Errorf("workspacesDir: %w", err)
	}
	if c.SessionsDir == "" || c.WorkspacesDir == "" {
		return fmt.Errorf("sessionsDir and workspacesDir must not be empty")
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		// ~user form is not supported
		return "", fmt.Errorf("unsupported home-relative path %q", path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Duration accessors. The rest of the codebase works in time.Duration.

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSeconds) * time.Second
}

func (c *Config) IdleOutputTimeout() time.Duration {
	return time.Duration(c.IdleOutputTimeoutSeconds) * time.Second
}

func (c *Config) StatusBudget() time.Duration {
	return time.Duration(c.StatusBudgetSeconds) * time.Second
}
