package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions()
		if err != nil {
			return fmt.Errorf("list sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION KEY\tCREATED\tLAST ACTIVITY\tMESSAGES\tACTIVE JOB")
		for _, sess := range sessions {
			activeJob := "-"
			if sess.ActiveJobID != "" {
				activeJob = sess.ActiveJobID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				sess.SessionKey,
				sess.CreatedAt.Format(time.RFC3339),
				sess.LastActivity.Format(time.RFC3339),
				sess.MessageCount,
				activeJob,
			)
		}
		return w.Flush()
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove idle sessions",
	Long: `Remove sessions whose last activity is older than the idle timeout.
Workspace directories are kept unless --delete-workspaces is given; they
hold the user's code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		idle := cfg.IdleTimeout()
		if seconds, _ := cmd.Flags().GetInt("idle-timeout"); seconds > 0 {
			idle = time.Duration(seconds) * time.Second
		}
		deleteWorkspaces, _ := cmd.Flags().GetBool("delete-workspaces")

		removed, err := store.CleanupIdleSessions(idle, deleteWorkspaces)
		if err != nil {
			return fmt.Errorf("cleanup: %v", err)
		}
		if len(removed) == 0 {
			fmt.Println("No idle sessions.")
			return nil
		}
		fmt.Printf("Removed %d session(s):\n", len(removed))
		for _, key := range removed {
			fmt.Println("  " + key)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().String("config", "", "Path to YAML config file")

	cleanupCmd.Flags().String("config", "", "Path to YAML config file")
	cleanupCmd.Flags().Int("idle-timeout", 0, "Idle cutoff in seconds (overrides config)")
	cleanupCmd.Flags().Bool("delete-workspaces", false, "Also delete workspace directories")
}

// openStore loads config and opens the file store for the direct CLI
// commands; they read and write the same directories serve does.
func openStore(cmd *cobra.Command) (storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.WarnLevel, JSONOutput: false})
	return storage.NewFileStore(cfg.SessionsDir, cfg.WorkspacesDir)
}
