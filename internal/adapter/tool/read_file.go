package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// ReadFileTool returns the text content of a file.
type ReadFileTool struct{ env }

func (t *ReadFileTool) Name() string        { return domain.ToolReadFile }
func (t *ReadFileTool) Description() string { return "Read the contents of a text file" }

func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to read"}
		},
		"required": ["path"]
	}`)
}

type readFileParams struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.read)
}

func (t *ReadFileTool) read(_ context.Context, span trace.Span, p readFileParams) (*domain.ToolResult, error) {
	if p.Path == "" {
		return nil, MissingParam(t.Name(), "path")
	}
	resolved := t.resolve(p.Path)

	info, err := t.fs.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Failed("File does not exist: %s", p.Path), nil
	}
	if err != nil {
		return domain.Failed("Failed to read file: %v", err), nil
	}
	if !info.Mode().IsRegular() {
		return domain.Failed("Path is not a file: %s", p.Path), nil
	}

	data, err := t.fs.ReadFile(resolved)
	if err != nil {
		return domain.Failed("Failed to read file: %v", err), nil
	}
	if !utf8.Valid(data) {
		return domain.Failed("Failed to read file: %s is not valid UTF-8 text", p.Path), nil
	}

	span.SetAttributes(tracer.IntAttr("file.size", len(data)))
	t.logger.Debug("read_file", "path", resolved, "size", len(data))

	return domain.Succeeded(map[string]any{
		"path":    p.Path,
		"content": string(data),
		"size":    len(data),
	}, fmt.Sprintf("Successfully read %d bytes from %s", len(data), p.Path)), nil
}
