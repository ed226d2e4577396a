package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomatyss/chatter/internal/adapter/tool"
	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/usecase"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *usecase.Agent, string) {
	t.Helper()
	dir := t.TempDir()
	agent, err := usecase.NewAgent(usecase.AgentDeps{
		Config: domain.AgentConfig{
			Enabled:           true,
			AllowedExtensions: []string{"txt", "md"},
			MaxFileSize:       1024,
			WorkingDirectory:  dir,
		},
		Build:  tool.NewBuilder(tool.BuildOptions{Limits: tool.Limits{MaxWalkEntries: 100}}, nopLogger()),
		Logger: nopLogger(),
	})
	require.NoError(t, err)
	return New(agent, "chatter-test", "0.0.1", nopLogger()), agent, dir
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// extractText joins the text content of a tool result.
func extractText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func decodePayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(extractText(result)), &payload))
	return payload
}

func TestNew_RegistersAgentTools(t *testing.T) {
	srv, agent, _ := newTestServer(t)
	assert.Equal(t, agent.AvailableTools(), srv.Tools())
}

func TestHandler_Success(t *testing.T) {
	srv, agent, dir := newTestServer(t)

	result, err := srv.handler(domain.ToolWriteFile)(context.Background(),
		callRequest(domain.ToolWriteFile, map[string]any{"path": "out.txt", "content": "hi"}))
	require.NoError(t, err)

	assert.False(t, result.IsError)
	payload := decodePayload(t, result)
	assert.Equal(t, "write_file", payload["tool"])
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, []any{"out.txt"}, payload["modified_files"])

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	assert.Len(t, agent.History(), 1)
}

func TestHandler_SoftFailureIsErrorResult(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handler(domain.ToolReadFile)(context.Background(),
		callRequest(domain.ToolReadFile, map[string]any{"path": "../escape.txt"}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	payload := decodePayload(t, result)
	assert.Equal(t, false, payload["success"])
	assert.NotEmpty(t, payload["message"])
}

func TestHandler_HardFailure(t *testing.T) {
	srv, agent, _ := newTestServer(t)
	agent.SetEnabled(context.Background(), false)

	result, err := srv.handler(domain.ToolListDirectory)(context.Background(),
		callRequest(domain.ToolListDirectory, nil))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, extractText(result), "AGENT_DISABLED")
}

func TestHandler_SchemaViolationRejectedBeforeExecution(t *testing.T) {
	srv, agent, dir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("keep"), 0o644))

	result, err := srv.handler(domain.ToolUpdateFile)(context.Background(),
		callRequest(domain.ToolUpdateFile, map[string]any{"path": "a.txt", "operation": "bogus", "replacement": "x"}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, extractText(result), "INVALID_INPUT")
	assert.Empty(t, agent.History(), "rejected calls never reach the agent")

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestHandler_NilArgumentsBecomeEmpty(t *testing.T) {
	fake := &fakeExecutor{result: domain.Succeeded(nil, "ok")}
	srv := New(fake, "t", "0", nopLogger())

	_, err := srv.handler("list_directory")(context.Background(), callRequest("list_directory", nil))
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.NotNil(t, fake.calls[0].Parameters)
	assert.Equal(t, "list_directory", fake.calls[0].Tool)
}

func TestNew_DefaultsMissingSchema(t *testing.T) {
	fake := &fakeExecutor{defs: []domain.ToolDefinition{{Name: "bare", Description: "no params"}}}
	srv := New(fake, "t", "0", nil)
	assert.Equal(t, []string{"bare"}, srv.Tools())
}

func TestHandleMessage_ListAndCall(t *testing.T) {
	srv, _, dir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# Title\n"), 0o644))
	ctx := context.Background()

	list := srv.MCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	for _, name := range srv.Tools() {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}

	call := srv.MCPServer().HandleMessage(ctx, json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"read_file","arguments":{"path":"a.md"}}}`))
	raw, err = json.Marshal(call)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `# Title`)
}

type fakeExecutor struct {
	defs   []domain.ToolDefinition
	result *domain.ToolResult
	calls  []domain.ToolCall
}

func (f *fakeExecutor) ValidateToolCall(domain.ToolCall) error { return nil }

func (f *fakeExecutor) ExecuteTool(_ context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	f.calls = append(f.calls, call)
	return f.result, nil
}

func (f *fakeExecutor) ToolDefinitions() []domain.ToolDefinition {
	if f.defs != nil {
		return f.defs
	}
	return []domain.ToolDefinition{{
		Name:        "list_directory",
		Description: "list",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
	}}
}
