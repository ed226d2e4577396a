package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// ListDirectoryTool lists the entries of a directory.
type ListDirectoryTool struct{ env }

func (t *ListDirectoryTool) Name() string        { return domain.ToolListDirectory }
func (t *ListDirectoryTool) Description() string { return "List files and directories in a given path" }

func (t *ListDirectoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory path to list (default: current directory)"},
			"recursive": {"type": "boolean", "description": "Whether to list recursively (default: false)"},
			"show_hidden": {"type": "boolean", "description": "Whether to show hidden files (default: false)"}
		}
	}`)
}

type listDirectoryParams struct {
	Path       string `json:"path"`
	Recursive  bool   `json:"recursive"`
	ShowHidden bool   `json:"show_hidden"`
}

// DirEntry is one line of a directory listing.
type DirEntry struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified *int64 `json:"modified,omitempty"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	return Execute(ctx, call, t.logger, t.list)
}

func (t *ListDirectoryTool) list(ctx context.Context, span trace.Span, p listDirectoryParams) (*domain.ToolResult, error) {
	if p.Path == "" {
		p.Path = "."
	}
	root := t.resolve(p.Path)

	info, err := t.fs.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Failed("Path does not exist: %s", p.Path), nil
	}
	if err != nil {
		return domain.Failed("Failed to read directory: %v", err), nil
	}
	if !info.IsDir() {
		return domain.Failed("Path is not a directory: %s", p.Path), nil
	}

	var entries []DirEntry
	if p.Recursive {
		entries, err = t.walk(ctx, root, p.ShowHidden)
	} else {
		entries, err = t.readDir(root, p.ShowHidden)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return domain.Failed("Failed to read directory: %v", err), nil
	}

	span.SetAttributes(tracer.IntAttr("list.entries", len(entries)))

	return domain.Succeeded(map[string]any{
		"path":        p.Path,
		"recursive":   p.Recursive,
		"entry_count": len(entries),
		"entries":     entries,
	}, fmt.Sprintf("Listed %d entries in %s", len(entries), p.Path)), nil
}

func (t *ListDirectoryTool) readDir(root string, showHidden bool) ([]DirEntry, error) {
	dirEntries, err := t.fs.ReadDir(root)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if !showHidden && isHidden(d.Name()) {
			continue
		}
		if t.allow != nil && !t.allow(filepath.Join(root, d.Name()), d.IsDir()) {
			continue
		}
		entries = append(entries, t.entry(filepath.Join(root, d.Name()), d))
	}
	return entries, nil
}

// walk lists everything below root. The root itself is not an entry and
// hidden directories are not descended into unless showHidden is set.
func (t *ListDirectoryTool) walk(ctx context.Context, root string, showHidden bool) ([]DirEntry, error) {
	entries := make([]DirEntry, 0)
	visited := 0
	err := t.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !showHidden && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ok, err := t.visit(path, d); !ok {
			return err
		}
		visited++
		if t.limits.MaxWalkEntries > 0 && visited > t.limits.MaxWalkEntries {
			return errStopWalk
		}
		entries = append(entries, t.entry(path, d))
		return nil
	})
	if errors.Is(err, errStopWalk) {
		t.logger.Warn("list_directory truncated", "path", root, "limit", t.limits.MaxWalkEntries)
		err = nil
	}
	return entries, err
}

func (t *ListDirectoryTool) entry(path string, d fs.DirEntry) DirEntry {
	e := DirEntry{Path: path, Name: d.Name(), Type: "file"}
	// Stat follows symlinks so a link to a directory lists as one.
	info, err := t.fs.Stat(path)
	if err != nil {
		if d.IsDir() {
			e.Type = "directory"
		}
		return e
	}
	if info.IsDir() {
		e.Type = "directory"
	}
	e.Size = info.Size()
	if mod := info.ModTime(); !mod.IsZero() {
		secs := mod.Unix()
		e.Modified = &secs
	}
	return e
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
