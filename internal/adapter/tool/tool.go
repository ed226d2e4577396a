package tool

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/tomatyss/chatter/internal/domain"
)

// Tool is a built-in filesystem tool. The set is closed: only this package
// can implement it, so adding a tool means adding a case to Builtins.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error)

	builtin()
}

// Info returns the static description of t.
func Info(t Tool) domain.ToolInfo {
	return domain.ToolInfo{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// Limits bounds the work a single call may do.
type Limits struct {
	MaxWalkEntries   int  // directory walk ceiling, 0 = unbounded
	SearchMaxResults int  // default max_results for search_files
	ShowDiff         bool // attach a unified diff to update_file results
}

// WalkFilter decides whether a directory walk may visit path. A rejected
// directory is not descended into; a rejected file is not opened or listed.
type WalkFilter func(path string, isDir bool) bool

// env is the shared state every built-in carries.
type env struct {
	fs      FilesystemBackend
	workdir string
	limits  Limits
	allow   WalkFilter
	logger  *slog.Logger
}

func (env) builtin() {}

// visit applies the walk filter, returning fs.SkipDir for a rejected
// directory. ok is false when the entry must be skipped.
func (e env) visit(path string, d fs.DirEntry) (ok bool, err error) {
	if e.allow == nil || e.allow(path, d.IsDir()) {
		return true, nil
	}
	if d.IsDir() {
		return false, fs.SkipDir
	}
	return false, nil
}

// resolve makes a relative tool path absolute against the working
// directory, matching what the safety gate checked.
func (e env) resolve(path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.workdir, path)
}

// Builtins returns the six built-in tools in registration order. allow may
// be nil, in which case walks visit every entry.
func Builtins(backend FilesystemBackend, workdir string, allow WalkFilter, limits Limits, logger *slog.Logger) []Tool {
	if logger == nil {
		logger = slog.Default()
	}
	e := env{fs: backend, workdir: workdir, limits: limits, allow: allow, logger: logger}
	return []Tool{
		&ReadFileTool{env: e},
		&WriteFileTool{env: e},
		&UpdateFileTool{env: e},
		&SearchFilesTool{env: e},
		&ListDirectoryTool{env: e},
		&FileInfoTool{env: e},
	}
}
