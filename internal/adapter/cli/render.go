package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/tomatyss/chatter/internal/domain"
)

const (
	maxSearchLines  = 10
	maxListingLines = 20
)

// FormatToolResult renders a successful result as markdown for the chat
// transcript. The same text is what a model sees when the session feeds
// results back.
func FormatToolResult(tool string, result *domain.ToolResult) string {
	data := normalizeData(result.Data)
	if data["dry_run"] == true {
		return fmt.Sprintf("**Dry run:** %s\n%s", result.Message, str(data, "note"))
	}

	switch tool {
	case domain.ToolReadFile:
		content, ok := data["content"].(string)
		if !ok {
			return "File read completed"
		}
		return fmt.Sprintf("**File: %s** (%d bytes)\n```\n%s\n```", str(data, "path"), num(data, "size"), content)

	case domain.ToolWriteFile:
		return fmt.Sprintf("**File written:** %s (%d bytes)", str(data, "path"), num(data, "size"))

	case domain.ToolUpdateFile:
		out := fmt.Sprintf("**File updated:** %s (operation: %s)", str(data, "path"), str(data, "operation"))
		if diff, ok := data["diff"].(string); ok && diff != "" {
			out += "\n```diff\n" + strings.TrimRight(diff, "\n") + "\n```"
		}
		return out

	case domain.ToolSearchFiles:
		var b strings.Builder
		fmt.Fprintf(&b, "**Search results for '%s':** %d matches in %d files",
			str(data, "pattern"), num(data, "matches_found"), num(data, "files_searched"))
		hits, _ := data["results"].([]any)
		if len(hits) > 0 {
			b.WriteString("\n\n**Matches:**")
			for i, h := range hits {
				if i == maxSearchLines {
					fmt.Fprintf(&b, "\n... and %d more matches", len(hits)-maxSearchLines)
					break
				}
				hit, _ := h.(map[string]any)
				fmt.Fprintf(&b, "\n%d. **%s:%d** `%s`", i+1, str(hit, "file"), num(hit, "line"), str(hit, "content"))
			}
		}
		return b.String()

	case domain.ToolListDirectory:
		var b strings.Builder
		fmt.Fprintf(&b, "**Directory listing for '%s':** %d entries", str(data, "path"), num(data, "entry_count"))
		entries, _ := data["entries"].([]any)
		if len(entries) > 0 {
			b.WriteString("\n\n**Contents:**")
			for i, e := range entries {
				if i == maxListingLines {
					fmt.Fprintf(&b, "\n... and %d more entries", len(entries)-maxListingLines)
					break
				}
				entry, _ := e.(map[string]any)
				name := str(entry, "name")
				if str(entry, "type") == "directory" {
					name += "/"
				}
				fmt.Fprintf(&b, "\n- %s", name)
			}
		}
		return b.String()

	case domain.ToolFileInfo:
		return fmt.Sprintf("**File info for '%s':** %s (%d bytes, type: %s)",
			str(data, "path"), str(data, "name"), num(data, "size"), str(data, "type"))
	}

	if result.Message != "" {
		return result.Message
	}
	return "Tool executed successfully"
}

// normalizeData turns typed result payloads into plain JSON values so the
// renderer reads the same shapes a model would.
func normalizeData(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return "unknown"
}

func num(m map[string]any, key string) int64 {
	if f, ok := m[key].(float64); ok {
		return int64(f)
	}
	return 0
}

// MarkdownRenderer renders markdown for the terminal, falling back to the
// raw text when glamour cannot.
type MarkdownRenderer struct {
	r *glamour.TermRenderer
}

// NewMarkdownRenderer builds a renderer wrapping at width columns.
func NewMarkdownRenderer(width int) *MarkdownRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &MarkdownRenderer{}
	}
	return &MarkdownRenderer{r: r}
}

// Render returns the styled text, or content unchanged on failure.
func (m *MarkdownRenderer) Render(content string) string {
	if m == nil || m.r == nil {
		return content
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content
	}
	return out
}
