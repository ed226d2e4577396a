package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tomatyss/chatter/internal/domain"
)

// Options configures a Registry.
type Options struct {
	Agent             domain.AgentConfig
	Backend           FilesystemBackend // nil = local filesystem
	Limits            Limits
	MaxCallsPerMinute int // 0 = unlimited
}

// Registry holds the built-in tools and dispatches calls to them through
// the safety gate, dry-run preview and backup steps.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string

	policy     domain.PathPolicy
	backend    FilesystemBackend
	paths      env
	dryRun     bool
	autoBackup bool
	limiter    *CallLimiter
	logger     *slog.Logger
	now        func() time.Time // for testing
}

var _ domain.ToolDispatcher = (*Registry)(nil)

// NewRegistry creates a registry with the six built-in tools registered.
func NewRegistry(policy domain.PathPolicy, opts Options, logger *slog.Logger) (*Registry, error) {
	if policy == nil {
		return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput, "nil path policy")
	}
	cfg, err := opts.Agent.Normalized()
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	backend := opts.Backend
	if backend == nil {
		backend = NewLocalFilesystemBackend()
	}

	r := &Registry{
		tools:      make(map[string]Tool),
		schemas:    make(map[string]*jsonschema.Schema),
		policy:     policy,
		backend:    backend,
		paths:      env{workdir: cfg.WorkingDirectory},
		dryRun:     cfg.DryRunMode,
		autoBackup: cfg.AutoBackup,
		limiter:    NewCallLimiter(opts.MaxCallsPerMinute),
		logger:     logger,
		now:        time.Now,
	}
	for _, t := range Builtins(backend, cfg.WorkingDirectory, policy.AllowsWalkEntry, opts.Limits, logger) {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names are unique; its parameter schema must compile.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("tool %q already registered", name))
	}
	schema, err := compileSchema(name, t.Parameters())
	if err != nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, err.Error())
	}

	r.tools[name] = t
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// ToolNames returns tool names in registration order.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ToolInfo returns the static description of one tool.
func (r *Registry) ToolInfo(name string) (domain.ToolInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return domain.ToolInfo{}, false
	}
	return Info(t), true
}

// AllToolInfo returns every tool's description in registration order.
func (r *Registry) AllToolInfo() []domain.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]domain.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, Info(r.tools[name]))
	}
	return infos
}

// ValidateToolCall checks required parameters and declared types, then
// runs the compiled JSON Schema so enum violations are caught too. Nothing
// is executed.
func (r *Registry) ValidateToolCall(call domain.ToolCall) error {
	const op = "Registry.ValidateToolCall"
	t, err := r.Get(call.Tool)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrToolNotFound, call.Tool)
	}
	schema, err := Info(t).Schema()
	if err != nil {
		return domain.NewDomainError(op, domain.ErrInvalidInput, err.Error())
	}
	if err := ValidateParams(op, schema, call.Parameters); err != nil {
		return err
	}
	return r.ValidateSchema(call)
}

// ValidateSchema runs full JSON Schema validation, including enums, over
// the call's parameters.
func (r *Registry) ValidateSchema(call domain.ToolCall) error {
	const op = "Registry.ValidateSchema"
	r.mu.RLock()
	schema, ok := r.schemas[call.Tool]
	_, known := r.tools[call.Tool]
	r.mu.RUnlock()
	if !known {
		return domain.NewDomainError(op, domain.ErrToolNotFound, call.Tool)
	}
	if !ok {
		return nil
	}
	if err := validateAgainstSchema(schema, call.Parameters); err != nil {
		return domain.NewDomainError(op, domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// Execute dispatches one call. An unknown tool, a call without the path a
// file tool needs, and a failed backup are returned as errors; everything
// else, including safety rejections, comes back as a result.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	t, err := r.Get(call.Tool)
	if err != nil {
		return nil, domain.NewDomainError("Registry.Execute", domain.ErrToolNotFound, call.Tool)
	}

	if !r.limiter.Allow() {
		r.logger.Warn("tool call rate limited", "tool", call.Tool, "per_minute", r.limiter.PerMinute())
		return domain.Failed("Rate limit exceeded: at most %d tool calls per minute", r.limiter.PerMinute()), nil
	}

	if err := r.policy.CheckToolCall(call); err != nil {
		if errors.Is(err, domain.ErrMissingParameter) {
			return nil, err
		}
		r.logger.Warn("safety check failed", "tool", call.Tool, "code", domain.ErrorCodeOf(err), "error", err)
		return domain.Failed("Safety check failed: %v", err), nil
	}

	if r.dryRun {
		return dryRunResult(t, call), nil
	}

	var backup string
	if r.autoBackup && isModification(call.Tool) {
		path, _ := call.StringParam("path")
		backup, err = createBackup(r.backend, r.paths.resolve(path), r.now())
		if err != nil {
			r.logger.Error("backup failed", "tool", call.Tool, "path", path, "error", err)
			return nil, err
		}
		if backup != "" {
			r.logger.Info("backup created", "tool", call.Tool, "path", path, "backup", backup)
		}
	}

	result, err := t.Execute(ctx, call)
	if err != nil {
		return domain.Failed("Tool execution failed: %v", err), nil
	}
	r.logger.Debug("tool executed", "tool", call.Tool, "success", result.Success)

	if backup != "" && result.Success {
		if data, ok := result.DataMap(); ok {
			data["backup_created"] = backup
		}
	}
	return result, nil
}

func dryRunResult(t Tool, call domain.ToolCall) *domain.ToolResult {
	params := call.Clone().Parameters
	if params == nil {
		params = map[string]any{}
	}
	return domain.Succeeded(map[string]any{
		"tool":        call.Tool,
		"parameters":  params,
		"description": t.Description(),
		"dry_run":     true,
		"note":        "This is a preview - no actual changes were made",
	}, fmt.Sprintf("DRY RUN: Would execute %s with given parameters", call.Tool))
}

func isModification(tool string) bool {
	return tool == domain.ToolWriteFile || tool == domain.ToolUpdateFile
}
