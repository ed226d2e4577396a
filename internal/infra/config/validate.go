package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateTools(cfg, ve)
	validateCompletion(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateAudit(cfg, ve)
	validateMCP(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	a := cfg.Agent
	if a.MaxFileSize <= 0 {
		ve.Add("agent.max_file_size must be > 0")
	}
	if strings.TrimSpace(a.WorkingDirectory) == "" {
		ve.Add("agent.working_directory must not be empty")
	}
	for i, ext := range a.AllowedExtensions {
		e := strings.TrimSpace(ext)
		if e == "" {
			ve.Add("agent.allowed_extensions[%d] must not be empty", i)
			continue
		}
		if strings.ContainsAny(e, `/\ `) {
			ve.Add("agent.allowed_extensions[%d] %q is not a bare extension", i, ext)
		}
	}
	for i, p := range a.ExtraAllowedPaths {
		if strings.TrimSpace(p) == "" {
			ve.Add("agent.extra_allowed_paths[%d] must not be empty", i)
		}
	}
	for i, p := range a.ExtraForbiddenPaths {
		if strings.TrimSpace(p) == "" {
			ve.Add("agent.extra_forbidden_paths[%d] must not be empty", i)
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.MaxCallsPerMinute < 0 {
		ve.Add("tools.max_calls_per_minute must be >= 0")
	}
	if t.MaxWalkEntries <= 0 {
		ve.Add("tools.max_walk_entries must be > 0")
	}
	if t.SearchMaxResults <= 0 {
		ve.Add("tools.search_max_results must be > 0")
	}
}

func validateCompletion(cfg *Config, ve *ValidationError) {
	c := cfg.Completion
	weights := map[string]float64{
		"phrase_weight":     c.PhraseWeight,
		"pattern_weight":    c.PatternWeight,
		"execution_weight":  c.ExecutionWeight,
		"inactivity_weight": c.InactivityWeight,
	}
	for name, w := range weights {
		if w < 0 {
			ve.Add("completion.%s must be >= 0", name)
		}
	}
	if c.RecencyDamping < 0 || c.RecencyDamping > 1 {
		ve.Add("completion.recency_damping must be between 0 and 1")
	}
	if c.InactivityThreshold <= 0 {
		ve.Add("completion.inactivity_threshold must be > 0")
	}
	if c.RecencyWindow < 0 || c.RecencyWindow > time.Hour {
		ve.Add("completion.recency_window must be between 0 and 1h")
	}
	if !(c.PossiblyThreshold <= c.LikelyThreshold && c.LikelyThreshold <= c.CompleteThreshold) {
		ve.Add("completion thresholds must satisfy possibly <= likely <= complete")
	}
	if c.CompleteThreshold > 1 || c.PossiblyThreshold < 0 {
		ve.Add("completion thresholds must lie within [0, 1]")
	}
	if c.RecentMessages <= 0 {
		ve.Add("completion.recent_messages must be > 0")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if lvl := strings.ToLower(cfg.Logger.Level); lvl != "" && !validLogLevels[lvl] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout", "stderr":
	default:
		ve.Add("tracer.exporter %q is not supported (want noop, stdout or stderr)", cfg.Tracer.Exporter)
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if strings.TrimSpace(cfg.Audit.Path) == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
	if v := cfg.Audit.Retention.MaxAge; v != "" {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			ve.Add("audit.retention.max_age %q is not a positive duration", v)
		}
	}
}

func validateMCP(cfg *Config, ve *ValidationError) {
	m := cfg.MCP
	if m.RequestsPerMinute < 0 {
		ve.Add("mcp.requests_per_minute must be >= 0")
	}
	if m.Burst < 0 {
		ve.Add("mcp.burst must be >= 0")
	}
	if m.MaxBodyBytes < 0 {
		ve.Add("mcp.max_body_bytes must be >= 0")
	}
	for i, p := range m.TrustedProxies {
		if strings.TrimSpace(p) == "" {
			ve.Add("mcp.trusted_proxies[%d] must not be empty", i)
		}
	}
}
