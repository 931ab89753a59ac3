package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/hutchlabs/hutch/pkg/supervisor"
	"github.com/hutchlabs/hutch/pkg/types"
)

// formatStatus renders a status report as compact text
func formatStatus(r *types.JobStatusReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job %s (session %s)\n", r.JobID, r.SessionKey))
	sb.WriteString(fmt.Sprintf("status: %s", r.Status))
	if r.ActivityState != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", r.ActivityState))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("elapsed: %s\n", (time.Duration(r.ElapsedSeconds) * time.Second).String()))
	sb.WriteString(fmt.Sprintf("output: %d bytes", r.OutputSize))
	if r.LastOutputSecondsAgo >= 0 {
		sb.WriteString(fmt.Sprintf(", last written %ds ago", r.LastOutputSecondsAgo))
	}
	sb.WriteString("\n")
	if r.ExitCode != nil {
		sb.WriteString(fmt.Sprintf("exitCode: %d\n", *r.ExitCode))
	}
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("error: %s\n", r.Error))
	}
	if r.Metrics != nil {
		sb.WriteString(fmt.Sprintf("cpu: %.1f%%, mem: %.0f/%.0f MB (%.1f%%)\n",
			r.Metrics.CPUPct, r.Metrics.MemMB, r.Metrics.MemLimitMB, r.Metrics.MemPct))
	}
	if r.TailOutput != "" {
		sb.WriteString("\n--- tail ---\n")
		sb.WriteString(r.TailOutput)
	}
	return sb.String()
}

// formatOutput renders one bounded read: a single header line, then the raw
// bytes.
func formatOutput(res *supervisor.OutputResult) string {
	c := res.Chunk
	end := c.Offset + int64(len(c.Content))
	header := fmt.Sprintf("[job %s, status %s, bytes %d-%d of %d, more: %t]\n",
		res.Job.ID, res.Job.Status, c.Offset, end, c.TotalSize, c.HasMore)
	return header + string(c.Content)
}

// formatCleanup renders the cleanup result
func formatCleanup(removed []string, deletedWorkspaces bool) string {
	if len(removed) == 0 {
		return "No idle sessions to clean up."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Removed %d idle session(s):\n", len(removed)))
	for _, key := range removed {
		sb.WriteString("  " + key + "\n")
	}
	if deletedWorkspaces {
		sb.WriteString("Workspaces deleted.\n")
	} else {
		sb.WriteString("Workspaces kept.\n")
	}
	return sb.String()
}

// formatSessions renders the enriched session list
func formatSessions(summaries []types.SessionSummary) string {
	if len(summaries) == 0 {
		return "No sessions."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d session(s):\n\n", len(summaries)))
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("%s\n", s.SessionKey))
		sb.WriteString(fmt.Sprintf("  created: %s, last activity: %s, messages: %d\n",
			s.CreatedAt.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339), s.MessageCount))
		if s.ActiveJobID != "" {
			sb.WriteString(fmt.Sprintf("  active job: %s (%s)\n", s.ActiveJobID, s.JobStatus))
		}
		sb.WriteString(fmt.Sprintf("  container running: %t\n", s.ContainerRunning))
	}
	return sb.String()
}
