package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/internal/telemetry"
	"github.com/rendis/vsm/internal/validation"
)

// Version is reported to MCP clients during initialization.
var Version = "dev"

// VSMServerDeps holds the dependencies for creating a VSMServer.
type VSMServerDeps struct {
	Executor  engine.Executor
	Hub       streaming.EventHub  // optional; nil disables change notifications
	Telemetry *telemetry.Registry // optional
	Validator validation.Validator // optional; nil uses a default graph validator
	Logger    *slog.Logger
}

// VSMServer wraps an MCP server with value stream map tool handlers.
type VSMServer struct {
	executor  engine.Executor
	hub       streaming.EventHub
	telemetry *telemetry.Registry
	validator validation.Validator
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewVSMServer creates a new VSMServer with every tool registered.
func NewVSMServer(deps VSMServerDeps) *VSMServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &VSMServer{
		executor:  deps.Executor,
		hub:       deps.Hub,
		telemetry: deps.Telemetry,
		validator: deps.Validator,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}
	if s.validator == nil {
		gv, err := validation.NewGraphValidator(nil)
		if err != nil {
			logger.Warn("tool argument validation disabled", "error", err)
		} else {
			s.validator = gv
		}
	}

	mcpSrv := server.NewMCPServer(
		"vsm",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("vsm edits and analyses one value stream map. Use vsm.status to see the canvas, vsm.edit to change it (undo/redo included), vsm.wizard to build a map from a form, vsm.metrics and vsm.timeline for lead time, takt and EPEI, vsm.insights for findings, vsm.simulate for what-if scenarios, vsm.query for jq queries and vsm.diagram to draw it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Canvas changes are pushed to watching clients meanwhile.
func (s *VSMServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.hub != nil {
		go func() {
			if err := s.notifier.Forward(ctx, s.hub); err != nil {
				s.logger.Warn("change notifications stopped", "error", err)
			}
		}()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *VSMServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the watcher registry.
func (s *VSMServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *VSMServer) tools() []server.ServerTool {
	entries := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{statusTool(), s.handleStatus},
		{graphTool(), s.handleGraph},
		{editTool(), s.handleEdit},
		{historyTool(), s.handleHistory},
		{wizardTool(), s.handleWizard},
		{metricsTool(), s.handleMetrics},
		{timelineTool(), s.handleTimeline},
		{diagramTool(), s.handleDiagram},
		{insightsTool(), s.handleInsights},
		{simulateTool(), s.handleSimulate},
		{queryTool(), s.handleQuery},
		{validateTool(), s.handleValidate},
	}
	out := make([]server.ServerTool, 0, len(entries))
	for _, e := range entries {
		h := s.checkArguments(e.tool, e.handler)
		out = append(out, server.ServerTool{Tool: e.tool, Handler: s.instrument(e.tool.Name, h)})
	}
	return out
}

// inputSchema returns the JSON Schema clients see for tool.
func inputSchema(tool mcp.Tool) ([]byte, error) {
	data, err := json.Marshal(tool)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.InputSchema, nil
}

// checkArguments rejects calls whose arguments do not match the tool's
// input schema before the handler runs.
func (s *VSMServer) checkArguments(tool mcp.Tool, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	if s.validator == nil {
		return h
	}
	sch, err := inputSchema(tool)
	if err != nil {
		s.logger.Warn("tool schema unavailable", "tool", tool.Name, "error", err)
		return h
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		if err := s.validator.ValidateInput(args, sch); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return h(ctx, req)
	}
}

// instrument records each call's outcome and duration. A tool result flagged
// as an error counts as a failure.
func (s *VSMServer) instrument(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		s.captureSession(ctx, req.GetString("client_id", ""))

		res, err := h(ctx, req)

		failed := err
		if failed == nil && res != nil && res.IsError {
			failed = errToolResult
		}
		if s.telemetry != nil {
			s.telemetry.RecordToolCall(name, failed)
		}
		s.logger.DebugContext(ctx, "tool call", "tool", name, "failed", failed != nil, "duration", time.Since(start))
		return res, err
	}
}

// captureSession registers the calling MCP session for change notifications
// under clientID.
func (s *VSMServer) captureSession(ctx context.Context, clientID string) {
	if clientID == "" {
		return
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}
