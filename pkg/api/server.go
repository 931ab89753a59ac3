package api

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/supervisor"
)

// Server is the MCP stdio surface: six tools over the supervisor.
type Server struct {
	mcp    *server.MCPServer
	logger zerolog.Logger
}

// Options tunes the tool surface.
type Options struct {
	// Version is reported in the MCP handshake.
	Version string

	// OutputLimit is the default read size for the output tool.
	OutputLimit int
}

// NewServer builds the MCP server and registers every tool.
func NewServer(sup *supervisor.Supervisor, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = storage.DefaultOutputLimit
	}
	logger := log.WithComponent("api")

	s := server.NewMCPServer(
		"hutch",
		opts.Version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(createStartTool(), instrument("start", handleStart(sup, logger)))
	s.AddTool(createStatusTool(), instrument("status", handleStatus(sup, logger)))
	s.AddTool(createOutputTool(), instrument("output", handleOutput(sup, opts.OutputLimit, logger)))
	s.AddTool(createCancelTool(), instrument("cancel", handleCancel(sup, logger)))
	s.AddTool(createCleanupTool(), instrument("cleanup", handleCleanup(sup, logger)))
	s.AddTool(createSessionsTool(), instrument("sessions", handleSessions(sup, logger)))

	return &Server{mcp: s, logger: logger}
}

// Serve blocks on the stdio transport until the client disconnects. Stdout
// belongs to the protocol; all logging goes to stderr.
func (s *Server) Serve() error {
	s.logger.Info().Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}
