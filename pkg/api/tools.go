package api

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStartTool returns the start tool definition
func createStartTool() mcp.Tool {
	return mcp.NewTool("start",
		mcp.WithDescription("Start a coding job: runs the prompt in an isolated container and returns immediately with a job id"),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Natural-language task for the assistant"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session key; reuses the session's workspace and conversation. Omit to start a fresh session"),
		),
	)
}

// createStatusTool returns the status tool definition
func createStatusTool() mcp.Tool {
	return mcp.NewTool("status",
		mcp.WithDescription("Inspect a job: status, elapsed time, activity, resource usage and a tail of its output"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job id returned by start"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session key; speeds up the lookup but is not required"),
		),
	)
}

// createOutputTool returns the output tool definition
func createOutputTool() mcp.Tool {
	return mcp.NewTool("output",
		mcp.WithDescription("Read a byte range of a job's output"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job id returned by start"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session key; speeds up the lookup but is not required"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Byte offset to read from (default: 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum bytes to return (default: 64KiB)"),
		),
	)
}

// createCancelTool returns the cancel tool definition
func createCancelTool() mcp.Tool {
	return mcp.NewTool("cancel",
		mcp.WithDescription("Cancel a running job and stop its container. Idempotent"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job id returned by start"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session key; speeds up the lookup but is not required"),
		),
	)
}

// createCleanupTool returns the cleanup tool definition
func createCleanupTool() mcp.Tool {
	return mcp.NewTool("cleanup",
		mcp.WithDescription("Remove idle sessions. Workspaces are kept unless delete_workspaces is set"),
		mcp.WithBoolean("delete_workspaces",
			mcp.Description("Also delete the sessions' workspace directories (default: false)"),
		),
	)
}

// createSessionsTool returns the sessions tool definition
func createSessionsTool() mcp.Tool {
	return mcp.NewTool("sessions",
		mcp.WithDescription("List all sessions with their active job and container state"),
	)
}
