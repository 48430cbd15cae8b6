// File: internal/mcpserver/tools_session.go
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xkilldash9x/novaact-mcp/internal/session"
)

func (s *Server) registerSessionTools() {
	s.mcp.AddTool(mcp.NewTool(ToolStartSession,
		mcp.WithDescription("Start a new browser automation session and navigate to a starting URL. Returns the session_id used by all other tools."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Starting page URL")),
		mcp.WithString("identity", mcp.Description("Profile identity for the browser session; sessions sharing an identity share cookies and storage")),
		mcp.WithBoolean("headless", mcp.Description("Run the browser headless (default true)")),
		mcp.WithString("session_id", mcp.Description("Explicit session id; generated when omitted")),
	), s.handleStartSession)

	s.mcp.AddTool(mcp.NewTool(ToolExecuteTask,
		mcp.WithDescription("Execute one natural-language instruction in a session. Simple instructions like \"click element '#id'\", \"type 'text' into element '#id'\" and \"navigate to 'url'\" run as direct page actions."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural-language instruction to perform")),
		mcp.WithString("instructions", mcp.Description("Additional constraints appended to the task")),
		mcp.WithString("schema", mcp.Description("JSON schema to shape the final answer with")),
		mcp.WithNumber("timeout", mcp.Description("Per-instruction timeout in seconds")),
		mcp.WithNumber("retry_attempts", mcp.Description("Maximum retries after transient failures")),
	), s.handleExecuteTask)

	s.mcp.AddTool(mcp.NewTool(ToolInspectPage,
		mcp.WithDescription("Inspect the current page of a session: URL, title, optional screenshot and the newest engine log files."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
		mcp.WithBoolean("include_screenshot", mcp.Description("Capture a viewport screenshot (default false)")),
		mcp.WithNumber("quality", mcp.Description("JPEG quality 1-100 for the screenshot")),
	), s.handleInspectPage)

	s.mcp.AddTool(mcp.NewTool(ToolEndSession,
		mcp.WithDescription("End a browser session, close its browser and remove it from the registry."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
	), s.handleEndSession)

	s.mcp.AddTool(mcp.NewTool(ToolListSessions,
		mcp.WithDescription("List all registered browser sessions with their status."),
	), s.handleListSessions)
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	result := s.controller.Start(ctx, session.StartParams{
		URL:       url,
		Identity:  request.GetString("identity", ""),
		Headless:  request.GetBool("headless", true),
		SessionID: request.GetString("session_id", ""),
	})
	return s.textResult(result)
}

func (s *Server) handleExecuteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.controller.Execute(ctx, session.ExecuteParams{
		SessionID:     request.GetString("session_id", ""),
		Task:          request.GetString("task", ""),
		Instructions:  request.GetString("instructions", ""),
		Schema:        request.GetString("schema", ""),
		TimeoutSec:    request.GetInt("timeout", 0),
		RetryAttempts: request.GetInt("retry_attempts", 0),
	})
	return s.textResult(result)
}

func (s *Server) handleInspectPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.controller.Inspect(ctx, session.InspectParams{
		SessionID:         request.GetString("session_id", ""),
		IncludeScreenshot: request.GetBool("include_screenshot", false),
		Quality:           request.GetInt("quality", 0),
	})
	return s.textResult(result)
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := s.controller.End(ctx, request.GetString("session_id", ""))
	return s.textResult(result)
}

func (s *Server) handleListSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.textResult(s.controller.List(ctx))
}
