package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
	"github.com/tomatyss/chatter/internal/infra/tracer"
)

// ComponentBuilder assembles the safety gate and dispatcher for a config.
// The agent calls it at start-up and again on every config change.
type ComponentBuilder func(domain.AgentConfig) (domain.PathPolicy, domain.ToolDispatcher, error)

// ToolAuditor records tool executions and policy changes.
type ToolAuditor interface {
	LogToolExecution(ctx context.Context, callID, tool, outcome string, detail map[string]string) error
	LogPolicyChange(ctx context.Context, eventType domain.AuditEventType, action, resource string) error
}

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Config     domain.AgentConfig
	Build      ComponentBuilder
	Completion *CompletionDetector // optional, nil = default weights
	Auditor    ToolAuditor         // optional, nil = no audit
	Logger     *slog.Logger
}

// Agent coordinates the safety gate, the dispatcher and the completion
// detector, and owns the tool-call history.
type Agent struct {
	mu      sync.RWMutex
	cfg     domain.AgentConfig
	build   ComponentBuilder
	policy  domain.PathPolicy
	tools   domain.ToolDispatcher
	history []domain.ToolCall

	completion *CompletionDetector
	auditor    ToolAuditor
	logger     *slog.Logger
}

// NewAgent normalizes the config and builds the initial components.
func NewAgent(deps AgentDeps) (*Agent, error) {
	if deps.Build == nil {
		return nil, domain.NewDomainError("NewAgent", domain.ErrInvalidInput, "nil component builder")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Completion == nil {
		deps.Completion = NewCompletionDetector(DefaultCompletionWeights())
	}

	a := &Agent{
		build:      deps.Build,
		completion: deps.Completion,
		auditor:    deps.Auditor,
		logger:     deps.Logger,
	}
	if err := a.rebuild(deps.Config); err != nil {
		return nil, err
	}
	return a, nil
}

// rebuild replaces config, policy and dispatcher together. Paths added at
// runtime belong to the old policy and are dropped.
func (a *Agent) rebuild(cfg domain.AgentConfig) error {
	cfg, err := cfg.Normalized()
	if err != nil {
		return domain.NewDomainError("Agent.rebuild", domain.ErrInvalidInput, err.Error())
	}
	policy, tools, err := a.build(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.cfg = cfg
	a.policy = policy
	a.tools = tools
	a.mu.Unlock()
	return nil
}

// IsEnabled reports whether agent mode is on.
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Enabled
}

// SetEnabled toggles agent mode without rebuilding anything.
func (a *Agent) SetEnabled(ctx context.Context, enabled bool) {
	a.mu.Lock()
	a.cfg.Enabled = enabled
	a.mu.Unlock()

	action := "disable"
	if enabled {
		action = "enable"
	}
	a.logger.Info("agent mode changed", "enabled", enabled)
	a.auditPolicy(ctx, domain.AuditAgentToggle, action, "agent")
}

// Config returns a copy of the current configuration.
func (a *Agent) Config() domain.AgentConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg := a.cfg
	cfg.AllowedExtensions = append([]string(nil), a.cfg.AllowedExtensions...)
	return cfg
}

// UpdateConfig swaps in a new configuration, rebuilding the safety gate
// and dispatcher from it. On error the previous components stay in place.
func (a *Agent) UpdateConfig(ctx context.Context, cfg domain.AgentConfig) error {
	if err := a.rebuild(cfg); err != nil {
		return err
	}
	cur := a.Config()
	a.logger.Info("agent config rebuilt",
		"working_directory", cur.WorkingDirectory,
		"dry_run", cur.DryRunMode,
		"auto_backup", cur.AutoBackup,
	)
	a.auditPolicy(ctx, domain.AuditPolicyChange, "update_config", cur.WorkingDirectory)
	return nil
}

// DetectToolCalls extracts tool calls from message text. A disabled agent
// detects nothing.
func (a *Agent) DetectToolCalls(message string) []domain.ToolCall {
	if !a.IsEnabled() {
		return nil
	}
	return ExtractToolCalls(message)
}

// ExecuteTool runs one call through the safety gate and dispatcher. The
// call is appended to history before it runs, so failed and rejected calls
// still count. The completion detector is told about every execution.
func (a *Agent) ExecuteTool(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Tool)),
	)
	defer span.End()

	a.mu.Lock()
	if !a.cfg.Enabled {
		a.mu.Unlock()
		err := domain.NewDomainError("Agent.ExecuteTool", domain.ErrAgentDisabled, "")
		tracer.RecordError(span, err)
		return nil, err
	}
	entry := call.Clone()
	if entry.ID == "" {
		entry.ID = newCallID()
	}
	a.history = append(a.history, entry)
	tools := a.tools
	a.mu.Unlock()

	span.SetAttributes(tracer.StringAttr("tool.call_id", entry.ID))

	result, err := tools.Execute(ctx, entry.Clone())
	a.completion.MarkExecution()

	outcome := "success"
	detail := map[string]string{}
	if p, ok := entry.StringParam("path"); ok {
		detail["path"] = p
	}
	switch {
	case err != nil:
		outcome = "error"
		detail["error"] = err.Error()
		tracer.RecordError(span, err)
		a.logger.Warn("tool call failed", "tool", entry.Tool, "call_id", entry.ID, "error", err)
	case !result.Success:
		outcome = "failure"
		detail["message"] = result.Message
		span.SetAttributes(tracer.BoolAttr("tool.success", false))
	default:
		if data, ok := result.DataMap(); ok {
			if b, ok := data["backup_created"].(string); ok {
				detail["backup"] = b
			}
		}
		detail["modified_files"] = strconv.Itoa(len(result.ModifiedFiles))
		span.SetAttributes(tracer.BoolAttr("tool.success", true))
		tracer.SetOK(span)
	}
	if a.auditor != nil {
		if aerr := a.auditor.LogToolExecution(ctx, entry.ID, entry.Tool, outcome, detail); aerr != nil {
			a.logger.Warn("audit write failed", "error", aerr)
		}
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// History returns a copy of the tool-call history, oldest first.
func (a *Agent) History() []domain.ToolCall {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.ToolCall, len(a.history))
	for i, c := range a.history {
		out[i] = c.Clone()
	}
	return out
}

// ClearHistory forgets every recorded call.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// historyView is the live history slice; append-only, so callers holding
// it see a consistent prefix.
func (a *Agent) historyView() []domain.ToolCall {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history[:len(a.history):len(a.history)]
}

// CompletionStatus grades the task over the caller's recent messages.
func (a *Agent) CompletionStatus(recent []string) domain.CompletionStatus {
	return a.completion.Status(recent, a.historyView())
}

// CompletionConfidence returns the raw completion score.
func (a *Agent) CompletionConfidence(recent []string) float64 {
	return a.completion.Confidence(recent, a.historyView())
}

// CompletionPatternMatches describes the completion patterns that match.
func (a *Agent) CompletionPatternMatches(recent []string) []string {
	return a.completion.MatchingPatterns(recent, a.historyView())
}

// IsTaskComplete is true when the agent is enabled and the status is
// LikelyComplete or better.
func (a *Agent) IsTaskComplete(recent []string) bool {
	if !a.IsEnabled() {
		return false
	}
	return a.CompletionStatus(recent).IsComplete()
}

// AvailableTools returns tool names in registration order.
func (a *Agent) AvailableTools() []string {
	return a.dispatcher().ToolNames()
}

// ToolDefinitions returns function-calling declarations for every tool.
func (a *Agent) ToolDefinitions() []domain.ToolDefinition {
	infos := a.dispatcher().AllToolInfo()
	defs := make([]domain.ToolDefinition, 0, len(infos))
	for _, info := range infos {
		defs = append(defs, info.Definition())
	}
	return defs
}

// ToolCatalog returns a markdown description of every tool.
func (a *Agent) ToolCatalog() []string {
	infos := a.dispatcher().AllToolInfo()
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.FormatDescription())
	}
	return out
}

// ValidateToolCall checks a call's parameters without running it.
func (a *Agent) ValidateToolCall(call domain.ToolCall) error {
	return a.dispatcher().ValidateToolCall(call)
}

// AddAllowedPath extends the current policy. The addition is lost on the
// next config change.
func (a *Agent) AddAllowedPath(ctx context.Context, path string) {
	a.pathPolicy().AddAllowedPath(path)
	a.logger.Info("allowed path added", "path", path)
	a.auditPolicy(ctx, domain.AuditPolicyChange, "allow_path", path)
}

// AddForbiddenPath extends the current policy. The addition is lost on the
// next config change.
func (a *Agent) AddForbiddenPath(ctx context.Context, path string) {
	a.pathPolicy().AddForbiddenPath(path)
	a.logger.Info("forbidden path added", "path", path)
	a.auditPolicy(ctx, domain.AuditPolicyChange, "forbid_path", path)
}

// AllowedPaths returns the policy's allowed prefixes.
func (a *Agent) AllowedPaths() []string { return a.pathPolicy().AllowedPaths() }

// ForbiddenPaths returns the policy's forbidden entries.
func (a *Agent) ForbiddenPaths() []string { return a.pathPolicy().ForbiddenPaths() }

// IsPathAllowed reports whether the policy would let a tool touch path.
func (a *Agent) IsPathAllowed(path string) bool { return a.pathPolicy().WouldAllowPath(path) }

// Status returns a snapshot for display.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.AgentStatus{
		Enabled:          a.cfg.Enabled,
		ToolsExecuted:    len(a.history),
		WorkingDirectory: a.cfg.WorkingDirectory,
		DryRunMode:       a.cfg.DryRunMode,
		AvailableTools:   a.tools.ToolNames(),
	}
}

func (a *Agent) dispatcher() domain.ToolDispatcher {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tools
}

func (a *Agent) pathPolicy() domain.PathPolicy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy
}

func (a *Agent) auditPolicy(ctx context.Context, eventType domain.AuditEventType, action, resource string) {
	if a.auditor == nil {
		return
	}
	if err := a.auditor.LogPolicyChange(ctx, eventType, action, resource); err != nil {
		a.logger.Warn("audit write failed", "error", err)
	}
}

func newCallID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
