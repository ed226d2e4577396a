package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomatyss/chatter/internal/adapter/tool"
	"github.com/tomatyss/chatter/internal/infra/config"
	"github.com/tomatyss/chatter/internal/infra/logger"
	"github.com/tomatyss/chatter/internal/infra/tracer"
	"github.com/tomatyss/chatter/internal/security"
	"github.com/tomatyss/chatter/internal/usecase"
)

// overrides are command-line settings applied on top of the loaded config.
type overrides struct {
	workingDir  string
	dryRun      bool
	dryRunSet   bool
	forceEnable bool

	// stdioReserved moves stdout logging and tracing to stderr.
	stdioReserved bool
}

// app holds the wired components for one command invocation.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	agent *usecase.Agent
	audit *security.FileAuditLogger // nil when audit is disabled

	cleanups []func()
}

// newApp loads config and assembles logger, tracer, audit trail and agent
// in that order. The returned app must be closed.
func newApp(ctx context.Context, cfgPath string, ov overrides) (*app, error) {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if ov.workingDir != "" {
		cfg.Agent.WorkingDirectory = ov.workingDir
	}
	if ov.dryRunSet {
		cfg.Agent.DryRunMode = ov.dryRun
	}
	if ov.forceEnable {
		cfg.Agent.Enabled = true
	}
	if ov.stdioReserved {
		if strings.EqualFold(cfg.Logger.Output, "stdout") {
			cfg.Logger.Output = "stderr"
		}
		if cfg.Tracer.Exporter == "stdout" {
			cfg.Tracer.Exporter = "stderr"
		}
	}

	a := &app{cfg: cfg}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.cleanups = append(a.cleanups, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.cleanups = append(a.cleanups, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	})

	// 3. Audit trail
	if err := a.initAudit(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("audit: %w", err)
	}

	// 4. Agent
	build := tool.NewBuilder(tool.BuildOptions{
		Limits: tool.Limits{
			MaxWalkEntries:   cfg.Tools.MaxWalkEntries,
			SearchMaxResults: cfg.Tools.SearchMaxResults,
			ShowDiff:         cfg.Tools.ShowDiff,
		},
		MaxCallsPerMinute:   cfg.Tools.MaxCallsPerMinute,
		ExtraAllowedPaths:   cfg.Agent.ExtraAllowedPaths,
		ExtraForbiddenPaths: cfg.Agent.ExtraForbiddenPaths,
	}, logger.Component(log, "tools"))

	deps := usecase.AgentDeps{
		Config:     cfg.DomainAgentConfig(),
		Build:      build,
		Completion: usecase.NewCompletionDetector(completionWeights(cfg.Completion)),
		Logger:     logger.Component(log, "agent"),
	}
	if a.audit != nil {
		deps.Auditor = a.audit
	}
	agent, err := usecase.NewAgent(deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("agent: %w", err)
	}
	a.agent = agent

	log.Debug("agent ready",
		"enabled", agent.IsEnabled(),
		"working_directory", agent.Config().WorkingDirectory,
		"tools", len(agent.AvailableTools()),
	)
	return a, nil
}

func (a *app) initAudit(ctx context.Context) error {
	ac := a.cfg.Audit
	if !ac.Enabled {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(ac.Path), 0o700); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	fileAudit, err := security.NewFileAuditLogger(ac.Path)
	if err != nil {
		return err
	}
	a.cleanups = append(a.cleanups, func() { _ = fileAudit.Close() })

	if ac.Retention.MaxAge != "" || ac.Retention.MaxSize != "" {
		var policy security.RetentionPolicy
		if ac.Retention.MaxAge != "" {
			d, err := time.ParseDuration(ac.Retention.MaxAge)
			if err != nil {
				return fmt.Errorf("parse audit retention max_age: %w", err)
			}
			policy.MaxAge = d
		}
		if ac.Retention.MaxSize != "" {
			n, err := security.ParseRetentionMaxSize(ac.Retention.MaxSize)
			if err != nil {
				return fmt.Errorf("parse audit retention max_size: %w", err)
			}
			policy.MaxSize = n
		}
		fileAudit.SetRetention(policy)
		if removed, err := fileAudit.EnforceRetention(ctx); err != nil {
			a.log.Warn("audit retention failed", "error", err)
		} else if removed > 0 {
			a.log.Info("audit retention applied", "removed", removed)
		}
	}

	a.audit = fileAudit
	a.log.Info("audit logging enabled", "path", ac.Path)
	return nil
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func completionWeights(c config.CompletionConfig) usecase.CompletionWeights {
	return usecase.CompletionWeights{
		Phrase:              c.PhraseWeight,
		Pattern:             c.PatternWeight,
		Execution:           c.ExecutionWeight,
		Inactivity:          c.InactivityWeight,
		InactivityThreshold: c.InactivityThreshold,
		RecencyWindow:       c.RecencyWindow,
		RecencyDamping:      c.RecencyDamping,
		Complete:            c.CompleteThreshold,
		Likely:              c.LikelyThreshold,
		Possibly:            c.PossiblyThreshold,
	}
}
