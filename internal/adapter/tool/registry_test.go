package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/security"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRegistry builds a registry rooted at a fresh temp dir with the
// real safety manager in front of it.
func newTestRegistry(t *testing.T, mutate ...func(*Options)) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		Agent: domain.AgentConfig{
			Enabled:           true,
			AllowedExtensions: []string{"txt", "md", "go"},
			MaxFileSize:       1 << 20,
			WorkingDirectory:  dir,
			AutoBackup:        false,
		},
		Limits: Limits{MaxWalkEntries: 1000, SearchMaxResults: 100},
	}
	for _, m := range mutate {
		m(&opts)
	}
	safety, err := security.NewSafetyManager(opts.Agent, nopLogger())
	require.NoError(t, err)
	reg, err := NewRegistry(safety, opts, nopLogger())
	require.NoError(t, err)
	return reg, dir
}

func call(tool string, params map[string]any) domain.ToolCall {
	return domain.ToolCall{Tool: tool, Parameters: params}
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	reg, _ := newTestRegistry(t)

	want := []string{
		domain.ToolReadFile, domain.ToolWriteFile, domain.ToolUpdateFile,
		domain.ToolSearchFiles, domain.ToolListDirectory, domain.ToolFileInfo,
	}
	assert.Equal(t, want, reg.ToolNames())

	infos := reg.AllToolInfo()
	require.Len(t, infos, 6)
	for i, info := range infos {
		assert.Equal(t, want[i], info.Name)
		assert.NotEmpty(t, info.Description)
		schema, err := info.Schema()
		require.NoError(t, err, info.Name)
		assert.Equal(t, "object", schema.Type)
	}

	info, ok := reg.ToolInfo(domain.ToolUpdateFile)
	require.True(t, ok)
	assert.Contains(t, info.FormatDescription(), "operation (string) *required*")

	_, ok = reg.ToolInfo("nonexistent_tool")
	assert.False(t, ok)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg, dir := newTestRegistry(t)

	dup := Builtins(NewLocalFilesystemBackend(), dir, nil, Limits{}, nopLogger())[0]
	err := reg.Register(dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
}

func TestRegistry_NilPolicy(t *testing.T) {
	_, err := NewRegistry(nil, Options{}, nopLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_UnknownToolIsHardError(t *testing.T) {
	reg, _ := newTestRegistry(t)

	result, err := reg.Execute(context.Background(), call("nonexistent_tool", nil))
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
	assert.Equal(t, domain.CodeToolNotFound, domain.ErrorCodeOf(err))
}

func TestRegistry_MissingPathIsHardError(t *testing.T) {
	reg, _ := newTestRegistry(t)

	result, err := reg.Execute(context.Background(), call(domain.ToolReadFile, map[string]any{}))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrMissingParameter)
}

func TestRegistry_SafetyRejectionIsSoft(t *testing.T) {
	reg, dir := newTestRegistry(t)
	writeTestFile(t, dir, "tool.exe", "MZ")

	tests := []struct {
		name   string
		call   domain.ToolCall
		reason string
	}{
		{"traversal", call(domain.ToolReadFile, map[string]any{"path": "../outside.txt"}), "traversal"},
		{"extension", call(domain.ToolReadFile, map[string]any{"path": "tool.exe"}), "extension"},
		{"outside", call(domain.ToolReadFile, map[string]any{"path": "/opt/notes.txt"}), "outside allowed"},
		{"dangerous", call(domain.ToolWriteFile, map[string]any{"path": "run.txt", "content": "then rm -rf /"}), "dangerous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := reg.Execute(context.Background(), tt.call)
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.False(t, result.Success)
			assert.True(t, strings.HasPrefix(result.Message, "Safety check failed: "), result.Message)
			assert.Contains(t, result.Message, tt.reason)
			assert.Equal(t, result.Message, result.Data)
		})
	}

	_, err := os.Stat(filepath.Join(dir, "run.txt"))
	assert.True(t, os.IsNotExist(err), "rejected write must not touch the disk")
}

func TestRegistry_DryRun(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) { o.Agent.DryRunMode = true })
	existing := writeTestFile(t, dir, "keep.txt", "original")

	result, err := reg.Execute(context.Background(), call(domain.ToolWriteFile, map[string]any{
		"path": "draft.txt", "content": "new",
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "DRY RUN: Would execute write_file with given parameters", result.Message)

	data, ok := result.DataMap()
	require.True(t, ok)
	assert.Equal(t, true, data["dry_run"])
	assert.Equal(t, "write_file", data["tool"])
	assert.Equal(t, "This is a preview - no actual changes were made", data["note"])
	assert.Equal(t, "Write content to a file (creates or overwrites)", data["description"])
	assert.Equal(t, map[string]any{"path": "draft.txt", "content": "new"}, data["parameters"])

	_, err = os.Stat(filepath.Join(dir, "draft.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = reg.Execute(context.Background(), call(domain.ToolWriteFile, map[string]any{
		"path": "keep.txt", "content": "changed",
	}))
	require.NoError(t, err)
	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestRegistry_DryRunStillChecksSafety(t *testing.T) {
	reg, _ := newTestRegistry(t, func(o *Options) { o.Agent.DryRunMode = true })

	result, err := reg.Execute(context.Background(), call(domain.ToolReadFile, map[string]any{"path": "../x.txt"}))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestRegistry_BackupBeforeOverwrite(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) { o.Agent.AutoBackup = true })
	reg.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	target := writeTestFile(t, dir, "notes.txt", "old content")

	result, err := reg.Execute(context.Background(), call(domain.ToolWriteFile, map[string]any{
		"path": "notes.txt", "content": "new content",
	}))
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)

	backups, err := filepath.Glob(filepath.Join(dir, "notes.txt.backup_*"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, filepath.Join(dir, "notes.txt.backup_20240102_030405"), backups[0])

	orig, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "old content", string(orig))

	now, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(now))

	data, _ := result.DataMap()
	assert.Equal(t, backups[0], data["backup_created"])
}

func TestRegistry_NoBackupForNewFile(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) { o.Agent.AutoBackup = true })

	result, err := reg.Execute(context.Background(), call(domain.ToolWriteFile, map[string]any{
		"path": "fresh.txt", "content": "x",
	}))
	require.NoError(t, err)
	require.True(t, result.Success)

	data, _ := result.DataMap()
	_, has := data["backup_created"]
	assert.False(t, has)

	backups, _ := filepath.Glob(filepath.Join(dir, "*.backup_*"))
	assert.Empty(t, backups)
}

func TestRegistry_NoBackupWhenDisabled(t *testing.T) {
	reg, dir := newTestRegistry(t)
	writeTestFile(t, dir, "notes.txt", "old")

	_, err := reg.Execute(context.Background(), call(domain.ToolWriteFile, map[string]any{
		"path": "notes.txt", "content": "new",
	}))
	require.NoError(t, err)

	backups, _ := filepath.Glob(filepath.Join(dir, "*.backup_*"))
	assert.Empty(t, backups)
}

// failingBackupFS refuses to write backup files.
type failingBackupFS struct {
	*LocalFilesystemBackend
}

func (f failingBackupFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if strings.Contains(path, ".backup_") {
		return errors.New("disk full")
	}
	return f.LocalFilesystemBackend.WriteFile(path, data, perm)
}

func TestRegistry_BackupFailureIsHardError(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) {
		o.Agent.AutoBackup = true
		o.Backend = failingBackupFS{NewLocalFilesystemBackend()}
	})
	target := writeTestFile(t, dir, "notes.txt", "old")

	result, err := reg.Execute(context.Background(), call(domain.ToolUpdateFile, map[string]any{
		"path": "notes.txt", "operation": "append", "replacement": "more",
	}))
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackupFailed)

	got, _ := os.ReadFile(target)
	assert.Equal(t, "old", string(got), "target must be untouched when the backup fails")
}

func TestRegistry_ToolErrorBecomesSoftFailure(t *testing.T) {
	reg, dir := newTestRegistry(t)
	writeTestFile(t, dir, "a.txt", "AAA")

	result, err := reg.Execute(context.Background(), call(domain.ToolUpdateFile, map[string]any{
		"path": "a.txt", "operation": "replace", "replacement": "B",
	}))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, strings.HasPrefix(result.Message, "Tool execution failed: "), result.Message)
	assert.Contains(t, result.Message, "'search'")
}

func TestRegistry_RateLimit(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) { o.MaxCallsPerMinute = 1 })
	writeTestFile(t, dir, "a.txt", "x")

	first, err := reg.Execute(context.Background(), call(domain.ToolReadFile, map[string]any{"path": "a.txt"}))
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := reg.Execute(context.Background(), call(domain.ToolReadFile, map[string]any{"path": "a.txt"}))
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Contains(t, second.Message, "Rate limit exceeded")
}

func TestRegistry_ValidateToolCall(t *testing.T) {
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name    string
		call    domain.ToolCall
		wantErr error
		msg     string
	}{
		{"ok", call(domain.ToolReadFile, map[string]any{"path": "a.txt"}), nil, ""},
		{"missing required", call(domain.ToolWriteFile, map[string]any{"path": "a.txt"}), domain.ErrMissingParameter, "content"},
		{"wrong type", call(domain.ToolReadFile, map[string]any{"path": 42.0}), domain.ErrInvalidInput,
			"parameter 'path' has type 'number' but expected 'string'"},
		{"integer accepts number", call(domain.ToolUpdateFile, map[string]any{
			"path": "a.txt", "operation": "insert_at_line", "line_number": 3.0,
		}), nil, ""},
		{"boolean mismatch", call(domain.ToolSearchFiles, map[string]any{
			"pattern": "x", "case_sensitive": "yes",
		}), domain.ErrInvalidInput, "case_sensitive"},
		{"undeclared params ignored", call(domain.ToolFileInfo, map[string]any{"path": "a.txt", "verbose": true}), nil, ""},
		{"enum violation", call(domain.ToolUpdateFile, map[string]any{
			"path": "a.txt", "operation": "bogus",
		}), domain.ErrInvalidInput, "operation"},
		{"unknown tool", call("nonexistent_tool", nil), domain.ErrToolNotFound, "nonexistent_tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidateToolCall(tt.call)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRegistry_ValidateSchema(t *testing.T) {
	reg, _ := newTestRegistry(t)

	assert.NoError(t, reg.ValidateSchema(call(domain.ToolUpdateFile, map[string]any{
		"path": "a.txt", "operation": "append", "replacement": "x",
	})))

	err := reg.ValidateSchema(call(domain.ToolUpdateFile, map[string]any{
		"path": "a.txt", "operation": "rotate",
	}))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = reg.ValidateSchema(call(domain.ToolReadFile, nil))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = reg.ValidateSchema(call("nonexistent_tool", nil))
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestRegistry_ConcurrentExecute(t *testing.T) {
	reg, dir := newTestRegistry(t)
	writeTestFile(t, dir, "shared.txt", "data")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := reg.Execute(context.Background(), call(domain.ToolReadFile, map[string]any{"path": "shared.txt"}))
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
}

func TestBuilder(t *testing.T) {
	dir := t.TempDir()
	build := NewBuilder(BuildOptions{
		Limits:              Limits{MaxWalkEntries: 10},
		ExtraForbiddenPaths: []string{filepath.Join(dir, "private")},
	}, nopLogger())

	policy, dispatcher, err := build(domain.AgentConfig{
		AllowedExtensions: []string{"txt"},
		MaxFileSize:       100,
		WorkingDirectory:  dir,
	})
	require.NoError(t, err)

	assert.Len(t, dispatcher.ToolNames(), 6)
	assert.True(t, policy.WouldAllowPath(filepath.Join(dir, "a.txt")))
	assert.False(t, policy.WouldAllowPath(filepath.Join(dir, "private", "a.txt")))
}

func TestRegistryWalksSkipRefusedEntries(t *testing.T) {
	reg, dir := newTestRegistry(t, func(o *Options) {
		o.Agent.AllowedExtensions = append(o.Agent.AllowedExtensions, "json")
	})
	writeTestFile(t, dir, "secret/keys.txt", "TOKEN=abc123\n")
	writeTestFile(t, dir, "config.json", `{"TOKEN": "xyz"}`+"\n")
	writeTestFile(t, dir, "notes.txt", "TOKEN=public\n")
	reg.policy.AddForbiddenPath(filepath.Join(dir, "secret"))
	ctx := context.Background()

	res, err := reg.Execute(ctx, call(domain.ToolReadFile, map[string]any{"path": "secret/keys.txt"}))
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = reg.Execute(ctx, call(domain.ToolSearchFiles, map[string]any{"pattern": "TOKEN"}))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	data, ok := res.DataMap()
	require.True(t, ok)
	hits := data["results"].([]searchHit)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), hits[0].File)
	assert.Equal(t, 1, data["files_searched"])

	for _, recursive := range []bool{false, true} {
		res, err = reg.Execute(ctx, call(domain.ToolListDirectory, map[string]any{"recursive": recursive}))
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
		data, ok = res.DataMap()
		require.True(t, ok)
		var names []string
		for _, e := range data["entries"].([]DirEntry) {
			names = append(names, e.Name)
		}
		assert.Equal(t, []string{"notes.txt"}, names, "recursive=%t", recursive)
	}
}
