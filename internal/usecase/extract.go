package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tomatyss/chatter/internal/domain"
)

// ExtractToolCalls pulls tool calls out of free text. It is a best-effort
// pre-filter, not a parser: the first line that is a JSON object shaped
// like a ToolCall is taken verbatim, then a few keyword rules synthesize
// read_file, search_files and list_directory calls. Structured JSON is the
// reliable path.
func ExtractToolCalls(message string) []domain.ToolCall {
	var calls []domain.ToolCall
	if call, ok := parseJSONToolCall(message); ok {
		calls = append(calls, call)
	}
	return append(calls, naturalLanguageToolCalls(message)...)
}

type jsonToolCall struct {
	Tool       *string        `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Thought    string         `json:"thought"`
	Reasoning  string         `json:"reasoning"`
}

func parseJSONToolCall(message string) (domain.ToolCall, bool) {
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var raw jsonToolCall
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if raw.Tool == nil || raw.Parameters == nil {
			continue
		}
		return domain.ToolCall{
			Tool:       *raw.Tool,
			Parameters: raw.Parameters,
			Thought:    raw.Thought,
			Reasoning:  raw.Reasoning,
		}, true
	}
	return domain.ToolCall{}, false
}

// naturalLanguageToolCalls matches keywords case-insensitively but takes
// paths and patterns from the original text so their case survives.
func naturalLanguageToolCalls(message string) []domain.ToolCall {
	lower := strings.ToLower(message)
	var calls []domain.ToolCall

	if strings.Contains(lower, "read") && (strings.Contains(lower, "file") || strings.Contains(lower, "content")) {
		if path, ok := extractFilePath(message); ok {
			calls = append(calls, domain.ToolCall{
				Tool:       domain.ToolReadFile,
				Parameters: map[string]any{"path": path},
				Thought:    "Reading file content as requested",
				Reasoning:  "User requested to read a file",
			})
		}
	}

	if strings.Contains(lower, "search") || strings.Contains(lower, "find") {
		if pattern, ok := extractSearchPattern(message); ok {
			calls = append(calls, domain.ToolCall{
				Tool:       domain.ToolSearchFiles,
				Parameters: map[string]any{"pattern": pattern, "directory": "."},
				Thought:    "Searching for files as requested",
				Reasoning:  "User requested to search for files",
			})
		}
	}

	if strings.Contains(lower, "list") && (strings.Contains(lower, "files") || strings.Contains(lower, "directory")) {
		dir, ok := extractFilePath(message)
		if !ok {
			dir = "."
		}
		calls = append(calls, domain.ToolCall{
			Tool:       domain.ToolListDirectory,
			Parameters: map[string]any{"path": dir},
			Thought:    "Listing directory contents as requested",
			Reasoning:  "User requested to list files or directory contents",
		})
	}

	return calls
}

// extractFilePath returns the first word containing a dot, or the text of
// the first quoted run of words. Surrounding quotes are dropped.
func extractFilePath(message string) (string, bool) {
	words := strings.Fields(message)
	for i, w := range words {
		if strings.Contains(w, ".") {
			return strings.Trim(w, `"'`), true
		}
		if strings.HasPrefix(w, `"`) || strings.HasPrefix(w, "'") {
			for j := i; j < len(words); j++ {
				if strings.HasSuffix(words[j], `"`) || strings.HasSuffix(words[j], "'") {
					return strings.Trim(strings.Join(words[i:j+1], " "), `"'`), true
				}
			}
		}
	}
	return "", false
}

// extractSearchPattern prefers a double-quoted term, then a single-quoted
// one, then the word after " for ".
func extractSearchPattern(message string) (string, bool) {
	for _, q := range []string{`"`, "'"} {
		if start := strings.Index(message, q); start >= 0 {
			if end := strings.Index(message[start+1:], q); end >= 0 {
				return message[start+1 : start+1+end], true
			}
		}
	}
	lower := strings.ToLower(message)
	if i := strings.Index(lower, " for "); i >= 0 {
		rest := message[i+len(" for "):]
		if end := strings.IndexByte(rest, ' '); end >= 0 {
			return rest[:end], true
		}
		return rest, true
	}
	return "", false
}

// ConvertModelToolCall turns a model's function call into a ToolCall.
// Arguments may be null, a JSON object, or a string holding either; a
// blank string means no arguments.
func ConvertModelToolCall(id, name string, arguments json.RawMessage) (domain.ToolCall, error) {
	params, err := argumentMap(arguments)
	if err != nil {
		return domain.ToolCall{}, domain.NewDomainError("ConvertModelToolCall", domain.ErrInvalidToolCall, err.Error())
	}
	return domain.ToolCall{ID: id, Tool: name, Parameters: params}, nil
}

func argumentMap(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}

	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return map[string]any{}, nil
		}
		return argumentMap(json.RawMessage(t))
	default:
		return nil, fmt.Errorf("tool arguments must be an object; received %s", raw)
	}
}

// ToolResultPayload is the object fed back to a model as the result of
// one of its tool calls.
func ToolResultPayload(tool string, result *domain.ToolResult) map[string]any {
	payload := map[string]any{
		"tool":           tool,
		"success":        result.Success,
		"data":           result.Data,
		"modified_files": append([]string{}, result.ModifiedFiles...),
	}
	if result.Message != "" {
		payload["message"] = result.Message
	}
	return payload
}
