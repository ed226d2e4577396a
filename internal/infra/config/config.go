package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomatyss/chatter/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Tools      ToolsConfig      `yaml:"tools"`
	Completion CompletionConfig `yaml:"completion"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Audit      AuditConfig      `yaml:"audit"`
	MCP        MCPConfig        `yaml:"mcp"`
	Includes   []string         `yaml:"includes,omitempty"`
}

// AgentConfig holds the tool-execution agent settings.
type AgentConfig struct {
	Enabled             bool     `yaml:"enabled"`
	AllowedExtensions   []string `yaml:"allowed_extensions"`
	MaxFileSize         int      `yaml:"max_file_size"`
	WorkingDirectory    string   `yaml:"working_directory"`
	AutoBackup          bool     `yaml:"auto_backup"`
	DryRunMode          bool     `yaml:"dry_run_mode"`
	ExtraAllowedPaths   []string `yaml:"extra_allowed_paths,omitempty"`
	ExtraForbiddenPaths []string `yaml:"extra_forbidden_paths,omitempty"`
}

// ToolsConfig holds dispatcher and built-in tool settings.
type ToolsConfig struct {
	MaxCallsPerMinute int  `yaml:"max_calls_per_minute"` // 0 = unlimited
	MaxWalkEntries    int  `yaml:"max_walk_entries"`     // directory walk ceiling
	SearchMaxResults  int  `yaml:"search_max_results"`   // default for search_files
	ShowDiff          bool `yaml:"show_diff"`            // attach a unified diff to update_file results
}

// CompletionConfig holds the completion heuristic weights and cut-offs.
type CompletionConfig struct {
	PhraseWeight        float64       `yaml:"phrase_weight"`
	PatternWeight       float64       `yaml:"pattern_weight"`
	ExecutionWeight     float64       `yaml:"execution_weight"`
	InactivityWeight    float64       `yaml:"inactivity_weight"`
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	RecencyWindow       time.Duration `yaml:"recency_window"`
	RecencyDamping      float64       `yaml:"recency_damping"`
	CompleteThreshold   float64       `yaml:"complete_threshold"`
	LikelyThreshold     float64       `yaml:"likely_threshold"`
	PossiblyThreshold   float64       `yaml:"possibly_threshold"`
	RecentMessages      int           `yaml:"recent_messages"` // window the CLI passes in
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// MCPConfig holds settings for the MCP HTTP transport. Stdio ignores them.
type MCPConfig struct {
	HTTPAddr          string   `yaml:"http_addr"`           // empty = stdio
	RequestsPerMinute int      `yaml:"requests_per_minute"` // per client, 0 = unlimited
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies,omitempty"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge  string `yaml:"max_age"`  // duration string, e.g. "720h"
	MaxSize string `yaml:"max_size"` // e.g. "10MB"
}

// defaultDataDir returns $HOME/.chatter, or ./.chatter when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatter"
	}
	return filepath.Join(home, ".chatter")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	agent := domain.DefaultAgentConfig()
	return &Config{
		Agent: AgentConfig{
			Enabled:           agent.Enabled,
			AllowedExtensions: agent.AllowedExtensions,
			MaxFileSize:       agent.MaxFileSize,
			WorkingDirectory:  agent.WorkingDirectory,
			AutoBackup:        agent.AutoBackup,
			DryRunMode:        agent.DryRunMode,
		},
		Tools: ToolsConfig{
			MaxCallsPerMinute: 120,
			MaxWalkEntries:    10000,
			SearchMaxResults:  100,
		},
		Completion: CompletionConfig{
			PhraseWeight:        0.8,
			PatternWeight:       0.6,
			ExecutionWeight:     0.5,
			InactivityWeight:    0.3,
			InactivityThreshold: 30 * time.Second,
			RecencyWindow:       5 * time.Second,
			RecencyDamping:      0.5,
			CompleteThreshold:   0.8,
			LikelyThreshold:     0.5,
			PossiblyThreshold:   0.3,
			RecentMessages:      10,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    filepath.Join(defaultDataDir(), "audit.jsonl"),
		},
		MCP: MCPConfig{
			RequestsPerMinute: 120,
			Burst:             20,
			MaxBodyBytes:      4 << 20,
		},
	}
}

// DomainAgentConfig converts the YAML agent section into the domain type.
func (c *Config) DomainAgentConfig() domain.AgentConfig {
	return domain.AgentConfig{
		Enabled:           c.Agent.Enabled,
		AllowedExtensions: append([]string(nil), c.Agent.AllowedExtensions...),
		MaxFileSize:       c.Agent.MaxFileSize,
		WorkingDirectory:  c.Agent.WorkingDirectory,
		AutoBackup:        c.Agent.AutoBackup,
		DryRunMode:        c.Agent.DryRunMode,
	}
}

// Load reads a YAML config file, applies includes and env overrides, and
// validates the result. A missing file yields the defaults. Every failure
// wraps domain.ErrConfigLoad; validation failures also unwrap to
// *ValidationError.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, domain.NewDomainError("config.Load", fmt.Errorf("%w: %w", domain.ErrConfigLoad, err), "")
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// The main file wins over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	// Relative working directories are taken relative to the config file.
	if wd := cfg.Agent.WorkingDirectory; wd != "" && !filepath.IsAbs(wd) {
		cfg.Agent.WorkingDirectory = filepath.Join(filepath.Dir(absPath), wd)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps CHATTER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := envBool("CHATTER_AGENT_ENABLED"); ok {
		cfg.Agent.Enabled = v
	}
	if v := os.Getenv("CHATTER_AGENT_WORKING_DIRECTORY"); v != "" {
		cfg.Agent.WorkingDirectory = v
	}
	if v := os.Getenv("CHATTER_AGENT_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Agent.AllowedExtensions = splitAndTrim(v, ",")
	}
	if v := os.Getenv("CHATTER_AGENT_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxFileSize = n
		}
	}
	if v, ok := envBool("CHATTER_AGENT_AUTO_BACKUP"); ok {
		cfg.Agent.AutoBackup = v
	}
	if v, ok := envBool("CHATTER_AGENT_DRY_RUN"); ok {
		cfg.Agent.DryRunMode = v
	}
	if v := os.Getenv("CHATTER_TOOLS_MAX_CALLS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Tools.MaxCallsPerMinute = n
		}
	}
	if v := os.Getenv("CHATTER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHATTER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHATTER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CHATTER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v, ok := envBool("CHATTER_AUDIT_ENABLED"); ok {
		cfg.Audit.Enabled = v
	}
	if v := os.Getenv("CHATTER_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("CHATTER_MCP_HTTP_ADDR"); v != "" {
		cfg.MCP.HTTPAddr = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
