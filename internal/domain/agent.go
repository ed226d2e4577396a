package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the write size cap used when none is configured.
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultAllowedExtensions lists the extensions file tools may touch by default.
var DefaultAllowedExtensions = []string{
	"txt", "md", "rs", "toml", "json", "yaml", "yml", "js", "ts",
	"py", "html", "css", "xml", "csv", "log",
}

// AgentConfig controls the tool-execution agent.
// Changing it rebuilds the safety gate and dispatcher.
type AgentConfig struct {
	Enabled           bool     `json:"enabled"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxFileSize       int      `json:"max_file_size"`
	WorkingDirectory  string   `json:"working_directory"`
	AutoBackup        bool     `json:"auto_backup"`
	DryRunMode        bool     `json:"dry_run_mode"`
}

// DefaultAgentConfig returns a disabled agent rooted at the current directory.
func DefaultAgentConfig() AgentConfig {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return AgentConfig{
		AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		MaxFileSize:       DefaultMaxFileSize,
		WorkingDirectory:  wd,
		AutoBackup:        true,
	}
}

// Normalized returns a copy with an absolute working directory and
// lowercased, dot-free extensions.
func (c AgentConfig) Normalized() (AgentConfig, error) {
	out := c
	wd := c.WorkingDirectory
	if wd == "" {
		wd = "."
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		return out, fmt.Errorf("resolve working directory: %w", err)
	}
	out.WorkingDirectory = abs

	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, e := range c.AllowedExtensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts = append(exts, e)
		}
	}
	out.AllowedExtensions = exts
	return out, nil
}

// AgentStatus is a read-only snapshot of the agent.
type AgentStatus struct {
	Enabled          bool     `json:"enabled"`
	ToolsExecuted    int      `json:"tools_executed"`
	WorkingDirectory string   `json:"working_directory"`
	DryRunMode       bool     `json:"dry_run_mode"`
	AvailableTools   []string `json:"available_tools"`
}

// CompletionStatus grades how likely it is that a task is finished.
// Values are ordered by increasing confidence.
type CompletionStatus int

const (
	InProgress CompletionStatus = iota
	PossiblyComplete
	LikelyComplete
	Complete
)

func (s CompletionStatus) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case PossiblyComplete:
		return "possibly_complete"
	case LikelyComplete:
		return "likely_complete"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("CompletionStatus(%d)", int(s))
	}
}

// Description returns a sentence suitable for showing to a user.
func (s CompletionStatus) Description() string {
	switch s {
	case InProgress:
		return "Task is still in progress"
	case PossiblyComplete:
		return "Task might be complete"
	case LikelyComplete:
		return "Task is likely complete"
	case Complete:
		return "Task appears to be complete"
	default:
		return "Unknown completion status"
	}
}

// IsComplete is true for Complete and LikelyComplete.
func (s CompletionStatus) IsComplete() bool {
	return s == Complete || s == LikelyComplete
}
