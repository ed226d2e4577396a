// Package mcpserver exposes the agent's gated tool set over the Model
// Context Protocol. Every call goes through the same safety gate, dry-run
// and backup steps as the interactive session.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/usecase"
)

// ToolExecutor is the slice of the agent the server needs.
type ToolExecutor interface {
	ValidateToolCall(call domain.ToolCall) error
	ExecuteTool(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error)
	ToolDefinitions() []domain.ToolDefinition
}

// Server wraps an MCP server whose tools forward to a ToolExecutor.
type Server struct {
	agent     ToolExecutor
	mcpServer *server.MCPServer
	logger    *slog.Logger

	mu    sync.Mutex
	tools []string
}

// New registers one MCP tool per agent tool definition.
func New(agent ToolExecutor, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		agent:  agent,
		logger: logger,
		mcpServer: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.agent.ToolDefinitions() {
		schema := def.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type": "object"}`)
		}
		s.mcpServer.AddTool(
			mcp.NewToolWithRawSchema(def.Name, def.Description, schema),
			s.handler(def.Name),
		)
		s.tools = append(s.tools, def.Name)
	}
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tools...)
}

// MCPServer returns the underlying server for alternative transports.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio speaks MCP over in/out until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio", "tools", len(s.Tools()))
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// handler forwards one tool call. Hard errors and soft failures both come
// back as error results so the client sees them; neither fails the RPC.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		call := domain.ToolCall{Tool: name, Parameters: args}

		s.logger.Debug("mcp tool call", "tool", name)
		if err := s.agent.ValidateToolCall(call); err != nil {
			s.logger.Warn("mcp tool call rejected", "tool", name, "error", err, "code", domain.ErrorCodeOf(err))
			return errorResult(err), nil
		}
		result, err := s.agent.ExecuteTool(ctx, call)
		if err != nil {
			s.logger.Warn("mcp tool call failed", "tool", name, "error", err, "code", domain.ErrorCodeOf(err))
			return errorResult(err), nil
		}

		payload, err := json.Marshal(usecase.ToolResultPayload(name, result))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		out := mcp.NewToolResultText(string(payload))
		out.IsError = !result.Success
		return out, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.ErrorCodeOf(err), err))
}
