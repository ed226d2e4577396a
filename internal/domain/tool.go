package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Built-in tool names.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolUpdateFile    = "update_file"
	ToolSearchFiles   = "search_files"
	ToolListDirectory = "list_directory"
	ToolFileInfo      = "file_info"
)

// ToolCall represents a request to invoke a tool.
// It is produced by parsing message text or by converting a model's
// function-call response, and is treated as immutable once built.
type ToolCall struct {
	ID         string         `json:"id,omitempty"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Thought    string         `json:"thought,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// Clone returns a deep copy of the call so history entries cannot be
// mutated through the caller's parameter map.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Parameters != nil {
		out.Parameters = cloneValue(c.Parameters).(map[string]any)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// StringParam returns the named parameter if it is a string.
func (c ToolCall) StringParam(name string) (string, bool) {
	v, ok := c.Parameters[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ToolResult is the uniform envelope every tool execution produces.
// On failure Data holds the error string and Success is false.
type ToolResult struct {
	Success       bool     `json:"success"`
	Data          any      `json:"data"`
	Message       string   `json:"message,omitempty"`
	ModifiedFiles []string `json:"modified_files"`
}

// Succeeded builds a success result.
func Succeeded(data any, message string, modified ...string) *ToolResult {
	if modified == nil {
		modified = []string{}
	}
	return &ToolResult{Success: true, Data: data, Message: message, ModifiedFiles: modified}
}

// Failed builds a soft-failure result carrying msg in both Data and Message.
func Failed(format string, args ...any) *ToolResult {
	msg := fmt.Sprintf(format, args...)
	return &ToolResult{Data: msg, Message: msg, ModifiedFiles: []string{}}
}

// DataMap returns Data as a JSON object when it is one.
func (r *ToolResult) DataMap() (map[string]any, bool) {
	m, ok := r.Data.(map[string]any)
	return m, ok
}

// ToolInfo is the static description of a tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolDefinition is the function-calling declaration handed to a model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Definition converts the info into a function-calling declaration.
func (i ToolInfo) Definition() ToolDefinition {
	return ToolDefinition{Name: i.Name, Description: i.Description, Parameters: i.Parameters}
}

// ParameterSchema is the subset of JSON Schema tool parameters use.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single tool parameter.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema decodes the raw parameter schema.
func (i ToolInfo) Schema() (ParameterSchema, error) {
	var s ParameterSchema
	if len(i.Parameters) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(i.Parameters, &s); err != nil {
		return s, fmt.Errorf("decode schema for %q: %w", i.Name, err)
	}
	return s, nil
}

// FormatDescription renders the tool as a markdown help entry.
func (i ToolInfo) FormatDescription() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: %s\n", i.Name, i.Description)

	schema, err := i.Schema()
	if err != nil || len(schema.Properties) == 0 {
		return b.String()
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("\nParameters:\n")
	for _, name := range names {
		prop := schema.Properties[name]
		typ := prop.Type
		if typ == "" {
			typ = "any"
		}
		marker := ""
		if required[name] {
			marker = " *required*"
		}
		desc := prop.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "  - %s (%s)%s: %s\n", name, typ, marker, desc)
	}
	return b.String()
}

// PathPolicy is the safety gate consulted before any tool runs.
type PathPolicy interface {
	CheckToolCall(call ToolCall) error
	WouldAllowPath(path string) bool
	AllowsWalkEntry(path string, isDir bool) bool
	AddAllowedPath(path string)
	AddForbiddenPath(path string)
	AllowedPaths() []string
	ForbiddenPaths() []string
}

// ToolDispatcher validates and executes tool calls.
type ToolDispatcher interface {
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
	ValidateToolCall(call ToolCall) error
	ToolNames() []string
	ToolInfo(name string) (ToolInfo, bool)
	AllToolInfo() []ToolInfo
}
