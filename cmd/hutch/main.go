package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hutchlabs/hutch/pkg/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hutch",
	Short: "Hutch - container-based job supervisor for AI coding tasks",
	Long: `Hutch runs natural-language coding prompts as detached, isolated
containers executing a command-line AI assistant. It captures each job's
streaming transcript, persists per-session state on disk, exposes MCP tools
to start, inspect, tail and cancel jobs, and notifies a webhook when a job
finishes.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hutch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// loadConfig builds the effective configuration: defaults, then the config
// file (explicit path, or ~/.hutch/config.yaml when present), then flag
// overrides applied by the caller.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		implicit := filepath.Join(home, ".hutch", "config.yaml")
		if _, err := os.Stat(implicit); err == nil {
			if err := cfg.LoadFile(implicit); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}
