package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
)

// FileInfoTool reports metadata about a file or directory.
type FileInfoTool struct{ env }

func (t *FileInfoTool) Name() string { return domain.ToolFileInfo }
func (t *FileInfoTool) Description() string {
	return "Get detailed information about a file or directory"
}

func (t *FileInfoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file or directory"}
		},
		"required": ["path"]
	}`)
}

type fileInfoParams struct {
	Path string `json:"path"`
}

func (t *FileInfoTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.info)
}

func (t *FileInfoTool) info(_ context.Context, _ trace.Span, p fileInfoParams) (*domain.ToolResult, error) {
	if p.Path == "" {
		return nil, MissingParam(t.Name(), "path")
	}
	resolved := t.resolve(p.Path)

	info, err := t.fs.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Failed("Path does not exist: %s", p.Path), nil
	}
	if err != nil {
		return domain.Failed("Failed to get metadata: %v", err), nil
	}

	kind := "other"
	switch {
	case info.IsDir():
		kind = "directory"
	case info.Mode().IsRegular():
		kind = "file"
	}

	data := map[string]any{
		"path":     p.Path,
		"name":     filepath.Base(resolved),
		"type":     kind,
		"size":     info.Size(),
		"readonly": info.Mode().Perm()&0o222 == 0,
	}
	created, accessed := statTimes(info)
	if created != nil {
		data["created"] = *created
	}
	if mod := info.ModTime(); !mod.IsZero() {
		data["modified"] = mod.Unix()
	}
	if accessed != nil {
		data["accessed"] = *accessed
	}

	if kind == "file" {
		if ext := fileExtension(resolved); ext != "" {
			data["extension"] = ext
		}
		isText := isTextPath(resolved)
		data["is_text"] = isText
		if isText {
			if content, err := t.fs.ReadFile(resolved); err == nil && utf8.Valid(content) {
				data["line_count"] = countLines(string(content))
			}
		}
	}

	return domain.Succeeded(data, fmt.Sprintf("Retrieved information for %s", p.Path)), nil
}
