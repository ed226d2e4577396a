// Package cli implements the line-oriented /agent session and renders tool
// results for a terminal.
//
// NO_COLOR (https://no-color.org/) is respected by lipgloss via its color
// profile detection; output to a non-terminal writer is plain text.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette shared by every style.
var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// Styles is the set of text styles bound to one output writer.
type Styles struct {
	Label   lipgloss.Style // "AGENT:" prefix
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Tool    lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
}

// NewStyles binds the palette to w so color detection follows the real
// destination rather than os.Stdout.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Label:   r.NewStyle().Foreground(ColorInfo).Bold(true),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Error:   r.NewStyle().Foreground(ColorError),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Info:    r.NewStyle().Foreground(ColorInfo),
		Tool:    r.NewStyle().Foreground(ColorWarning).Bold(true),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Bold:    r.NewStyle().Bold(true),
	}
}

// YesNo renders a boolean setting; good says which value is the safe one.
func (s Styles) YesNo(v, good bool) string {
	text := "No"
	if v {
		text = "Yes"
	}
	if v == good {
		return s.Success.Render(text)
	}
	return s.Error.Render(text)
}

// SymbolSet holds the glyphs printed before session messages.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Tool    string
	Thought string
	Bullet  string
	Dir     string
	File    string
}

var unicodeSymbols = SymbolSet{
	Success: "\u2713", // ✓
	Error:   "\u2717", // ✗
	Warning: "\u26A0", // ⚠
	Info:    "\u25CF", // ●
	Tool:    "\u2192", // →
	Thought: "\u2026", // …
	Bullet:  "\u2022", // •
	Dir:     "\u25B8", // ▸
	File:    "\u00B7", // ·
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	Info:    "[i]",
	Tool:    "->",
	Thought: "...",
	Bullet:  "*",
	Dir:     "[D]",
	File:    "[F]",
}

// DetectSymbols picks the Unicode set unless CHATTER_ASCII_SYMBOLS is set
// or the locale names a non-UTF-8 charset.
func DetectSymbols() SymbolSet {
	if v := os.Getenv("CHATTER_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return asciiSymbols
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return unicodeSymbols
		}
		if val == "c" || val == "posix" {
			return asciiSymbols
		}
	}
	return unicodeSymbols
}
