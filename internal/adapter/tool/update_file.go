package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"unicode/utf8"

	"github.com/aymanbagabas/go-udiff"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// Update operations.
const (
	OpReplace      = "replace"
	OpAppend       = "append"
	OpPrepend      = "prepend"
	OpInsertAtLine = "insert_at_line"
)

// UpdateFileTool applies a targeted edit to an existing file.
type UpdateFileTool struct{ env }

func (t *UpdateFileTool) Name() string { return domain.ToolUpdateFile }
func (t *UpdateFileTool) Description() string {
	return "Update a file by replacing specific content or appending to it"
}

func (t *UpdateFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to update"},
			"operation": {
				"type": "string",
				"enum": ["replace", "append", "prepend", "insert_at_line"],
				"description": "Type of update operation"
			},
			"search": {"type": "string", "description": "Text to search for (required for replace operation)"},
			"replacement": {"type": "string", "description": "Replacement text (for replace operation) or content to add"},
			"line_number": {"type": "integer", "description": "Line number for insert_at_line operation (1-based)"}
		},
		"required": ["path", "operation"]
	}`)
}

type updateFileParams struct {
	Path        string  `json:"path"`
	Operation   string  `json:"operation"`
	Search      *string `json:"search"`
	Replacement *string `json:"replacement"`
	LineNumber  *uint   `json:"line_number"`
}

func (t *UpdateFileTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.update)
}

func (t *UpdateFileTool) update(_ context.Context, span trace.Span, p updateFileParams) (*domain.ToolResult, error) {
	if p.Path == "" {
		return nil, MissingParam(t.Name(), "path")
	}
	if p.Operation == "" {
		return nil, MissingParam(t.Name(), "operation")
	}
	span.SetAttributes(tracer.StringAttr("tool.operation", p.Operation))
	resolved := t.resolve(p.Path)

	info, err := t.fs.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Failed("File does not exist: %s", p.Path), nil
	}
	if err != nil {
		return domain.Failed("Failed to read file: %v", err), nil
	}

	raw, err := t.fs.ReadFile(resolved)
	if err != nil {
		return domain.Failed("Failed to read file: %v", err), nil
	}
	if !utf8.Valid(raw) {
		return domain.Failed("Failed to read file: %s is not valid UTF-8 text", p.Path), nil
	}
	original := string(raw)

	updated, soft, err := applyUpdate(t.Name(), original, p)
	if err != nil {
		return nil, err
	}
	if soft != nil {
		return soft, nil
	}

	if err := t.fs.WriteFile(resolved, []byte(updated), info.Mode().Perm()); err != nil {
		return domain.Failed("Failed to update file: %v", err), nil
	}

	t.logger.Debug("update_file", "path", resolved, "operation", p.Operation,
		"original_size", len(original), "new_size", len(updated))

	data := map[string]any{
		"path":          p.Path,
		"operation":     p.Operation,
		"original_size": len(original),
		"new_size":      len(updated),
	}
	if t.limits.ShowDiff {
		data["diff"] = udiff.Unified(p.Path, p.Path, original, updated)
	}
	return domain.Succeeded(data,
		fmt.Sprintf("Successfully updated %s using %s operation", p.Path, p.Operation), p.Path), nil
}

// applyUpdate computes the new content. A missing parameter the operation
// needs is an error; an unknown operation or out-of-range line is a soft
// failure result.
func applyUpdate(tool, original string, p updateFileParams) (string, *domain.ToolResult, error) {
	switch p.Operation {
	case OpReplace:
		if p.Search == nil {
			return "", nil, MissingParam(tool, "search")
		}
		return strings.ReplaceAll(original, *p.Search, deref(p.Replacement)), nil, nil

	case OpAppend:
		if p.Replacement == nil {
			return "", nil, MissingParam(tool, "replacement")
		}
		return original + "\n" + *p.Replacement, nil, nil

	case OpPrepend:
		if p.Replacement == nil {
			return "", nil, MissingParam(tool, "replacement")
		}
		return *p.Replacement + "\n" + original, nil, nil

	case OpInsertAtLine:
		if p.LineNumber == nil {
			return "", nil, MissingParam(tool, "line_number")
		}
		if p.Replacement == nil {
			return "", nil, MissingParam(tool, "replacement")
		}
		lines := splitLines(original)
		idx := 0
		if *p.LineNumber > 0 {
			idx = int(*p.LineNumber - 1)
		}
		if idx > len(lines) {
			return "", domain.Failed("Line number %d is out of range", *p.LineNumber), nil
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:idx]...)
		out = append(out, *p.Replacement)
		out = append(out, lines[idx:]...)
		return strings.Join(out, "\n"), nil, nil
	}
	return "", domain.Failed("Unknown operation: %s", p.Operation), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
