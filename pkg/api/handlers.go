package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/supervisor"
)

// instrument wraps a handler with per-tool request counting and timing.
func instrument(tool string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, request)
		metrics.APIRequestDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil || (res != nil && res.IsError) {
			result = "error"
		}
		metrics.APIRequestsTotal.WithLabelValues(tool, result).Inc()
		return res, nil
	}
}

// handleStart implements the start tool. Pre-condition violations (missing
// credentials, missing image, active job) are hard errors; the host agent
// must not treat them as a started job.
func handleStart(sup *supervisor.Supervisor, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := request.RequireString("prompt")
		if err != nil || prompt == "" {
			return mcp.NewToolResultError("prompt parameter is required"), nil
		}
		sessionKey := request.GetString("session_id", "")

		res, err := sup.Start(ctx, prompt, sessionKey)
		if err != nil {
			logger.Error().Err(err).Str("session_key", sessionKey).Msg("start failed")
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(
			"Job started.\njobId: %s\nsessionKey: %s\nstatus: %s",
			res.JobID, res.SessionKey, res.Status)), nil
	}
}

// handleStatus implements the status tool
func handleStatus(sup *supervisor.Supervisor, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		sessionKey := request.GetString("session_id", "")

		report, err := sup.Status(ctx, jobID, sessionKey)
		if errors.Is(err, supervisor.ErrJobNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("Job not found: %s", jobID)), nil
		}
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("status failed")
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(formatStatus(report)), nil
	}
}

// handleOutput implements the output tool
func handleOutput(sup *supervisor.Supervisor, defaultLimit int, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		sessionKey := request.GetString("session_id", "")
		offset := request.GetInt("offset", 0)
		limit := request.GetInt("limit", defaultLimit)

		res, err := sup.Output(ctx, jobID, sessionKey, int64(offset), limit)
		if errors.Is(err, supervisor.ErrJobNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("Job not found: %s", jobID)), nil
		}
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("output read failed")
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(formatOutput(res)), nil
	}
}

// handleCancel implements the cancel tool
func handleCancel(sup *supervisor.Supervisor, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		sessionKey := request.GetString("session_id", "")

		res, err := sup.Cancel(ctx, jobID, sessionKey)
		if errors.Is(err, supervisor.ErrJobNotFound) {
			return mcp.NewToolResultText(fmt.Sprintf("Job not found: %s", jobID)), nil
		}
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("cancel failed")
			return mcp.NewToolResultError(err.Error()), nil
		}

		if res.AlreadyTerminal {
			return mcp.NewToolResultText(fmt.Sprintf(
				"Job %s already finished (status: %s); nothing to cancel.", res.JobID, res.Status)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Job %s cancelled.", res.JobID)), nil
	}
}

// handleCleanup implements the cleanup tool
func handleCleanup(sup *supervisor.Supervisor, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deleteWorkspaces := request.GetBool("delete_workspaces", false)

		removed, err := sup.Cleanup(deleteWorkspaces)
		if err != nil {
			logger.Error().Err(err).Msg("cleanup failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatCleanup(removed, deleteWorkspaces)), nil
	}
}

// handleSessions implements the sessions tool
func handleSessions(sup *supervisor.Supervisor, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summaries, err := sup.Sessions(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("sessions listing failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatSessions(summaries)), nil
	}
}
