package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomatyss/chatter/internal/domain"
)

// FriendlyError is a user-facing error with recovery hints.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string // original error text
}

// Render formats the error for the session output. bullet prefixes hints.
func (fe FriendlyError) Render(bullet string) string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", bullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   error
	produce func(err error) FriendlyError
}

// Sentinels are checked in order, so wrapped errors match through errors.Is.
var patterns = []errorPattern{
	{
		match: domain.ErrAgentDisabled,
		produce: constantError("Agent Disabled", "Tool calls are ignored while agent mode is off.",
			[]string{"Run '/agent on' to enable tool execution"}),
	},
	{
		match: domain.ErrToolNotFound,
		produce: constantError("Unknown Tool", "The requested tool is not registered.",
			[]string{"Run '/agent tools' to list the available tools"}),
	},
	{
		match: domain.ErrMissingParameter,
		produce: constantError("Missing Parameter", "The tool call is missing a required parameter.",
			[]string{"Run '/agent tools' to see each tool's parameters"}),
	},
	{
		match: domain.ErrInvalidToolCall,
		produce: constantError("Invalid Tool Call", "The tool call could not be decoded.",
			[]string{"Send a JSON object with \"tool\" and \"parameters\" keys"}),
	},
	{
		match: domain.ErrBackupFailed,
		produce: constantError("Backup Failed", "The file was left untouched because its backup could not be written.",
			[]string{"Check that the directory is writable", "Disable auto_backup in config to skip backups"}),
	},
	{
		match: domain.ErrRateLimit,
		produce: constantError("Rate Limited", "Too many tool calls in the last minute.",
			[]string{"Wait a moment before retrying", "Raise tools.max_calls_per_minute in config"}),
	},
	{
		match: domain.ErrPathTraversal,
		produce: constantError("Path Blocked", "Paths containing '..' segments are rejected.",
			[]string{"Use a path inside the working directory"}),
	},
	{
		match: domain.ErrPathNotAllowed,
		produce: constantError("Path Blocked", "The path is outside the allowed directories.",
			[]string{"Run '/agent allow-path <path>' to allow it", "Check agent.working_directory in config"}),
	},
	{
		match: domain.ErrPathForbidden,
		produce: constantError("Path Blocked", "The path is inside a forbidden directory.",
			[]string{"Run '/agent config' to review the forbidden paths"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if errors.Is(err, p.match) {
			return p.produce(err)
		}
	}
	if domain.IsSafetyError(err) {
		return FriendlyError{
			Title:   "Blocked By Safety Rules",
			Message: err.Error(),
			Hints:   []string{"Run '/agent config' to review the current policy"},
			Raw:     err.Error(),
		}
	}
	return FriendlyError{
		Title:   "Tool Execution Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Set logger.level to debug for more details"},
		Raw:     err.Error(),
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
