// File: internal/mcpserver/server.go

// Package mcpserver exposes browser session management as MCP tools over
// stdio JSON-RPC.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/novaact-mcp/internal/config"
	"github.com/xkilldash9x/novaact-mcp/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tool names exposed by this server.
const (
	ToolStartSession   = "start_session"
	ToolExecuteTask    = "execute_instruction"
	ToolInspectPage    = "inspect_browser"
	ToolEndSession     = "end_session"
	ToolListSessions   = "list_browser_sessions"
	ToolFetchFile      = "fetch_file"
	ToolViewHTMLLog    = "view_html_log"
	ToolCompressLogs   = "compress_logs"
	ToolViewCompressed = "view_compressed_log"
)

// Server wraps the MCP server with the session controller behind it.
type Server struct {
	cfg        config.Interface
	logger     *zap.Logger
	controller *session.Controller
	mcp        *server.MCPServer
}

// New builds the server and registers all tools.
func New(cfg config.Interface, logger *zap.Logger, controller *session.Controller) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		controller: controller,
	}
	s.mcp = server.NewMCPServer(
		cfg.Server().Name,
		cfg.Server().Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerSessionTools()
	s.registerFileTools()
	return s
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("MCP server listening on stdio.",
		zap.String("name", s.cfg.Server().Name),
		zap.String("version", s.cfg.Server().Version))
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// textResult marshals a payload into a text tool result. Domain errors
// travel inside the payload; only marshaling itself can fail the call.
func (s *Server) textResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalToString(payload)
	if err != nil {
		s.logger.Error("Failed to marshal tool result.", zap.Error(err))
		return mcp.NewToolResultError("internal error: failed to encode result"), nil
	}
	return mcp.NewToolResultText(data), nil
}
