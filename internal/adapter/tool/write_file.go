package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct{ env }

func (t *WriteFileTool) Name() string        { return domain.ToolWriteFile }
func (t *WriteFileTool) Description() string { return "Write content to a file (creates or overwrites)" }

func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to write"},
			"content": {"type": "string", "description": "Content to write to the file"}
		},
		"required": ["path", "content"]
	}`)
}

type writeFileParams struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

func (t *WriteFileTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.write)
}

func (t *WriteFileTool) write(_ context.Context, span trace.Span, p writeFileParams) (*domain.ToolResult, error) {
	if p.Path == "" {
		return nil, MissingParam(t.Name(), "path")
	}
	if p.Content == nil {
		return nil, MissingParam(t.Name(), "content")
	}
	resolved := t.resolve(p.Path)

	if dir := filepath.Dir(resolved); dir != "" {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return domain.Failed("Failed to create directories: %v", err), nil
		}
	}

	data := []byte(*p.Content)
	if err := t.fs.WriteFile(resolved, data, 0o644); err != nil {
		return domain.Failed("Failed to write file: %v", err), nil
	}

	span.SetAttributes(tracer.IntAttr("file.size", len(data)))
	t.logger.Debug("write_file", "path", resolved, "size", len(data))

	return domain.Succeeded(map[string]any{
		"path": p.Path,
		"size": len(data),
	}, fmt.Sprintf("Successfully wrote %d bytes to %s", len(data), p.Path), p.Path), nil
}
