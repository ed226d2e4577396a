package tool

import (
	"path/filepath"
	"regexp"
	"strings"
)

// textExtensions are the extensions search_files scans and file_info
// reports as text.
var textExtensions = map[string]bool{
	"txt": true, "md": true, "rs": true, "toml": true, "json": true, "yaml": true,
	"yml": true, "js": true, "ts": true, "py": true, "html": true, "css": true,
	"xml": true, "csv": true, "log": true, "cfg": true, "conf": true, "ini": true,
	"sh": true, "bash": true, "zsh": true, "fish": true, "ps1": true, "bat": true,
	"cmd": true, "c": true, "cpp": true, "h": true, "hpp": true, "java": true,
	"kt": true, "swift": true, "go": true, "rb": true, "php": true, "pl": true,
	"r": true, "sql": true, "dockerfile": true,
}

// fileExtension returns the extension of path without the dot. Dotfiles
// such as ".bashrc" have none.
func fileExtension(path string) string {
	base := filepath.Base(path)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return base[i+1:]
}

func isTextPath(path string) bool {
	return textExtensions[strings.ToLower(fileExtension(path))]
}

// globRegexp translates a simple file-name glob ("*.md", "note?.txt") into
// an anchored regexp. Only '*' and '?' are special.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// countLines counts lines the way a line iterator would: a trailing
// newline does not start a new line and empty content has none.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// splitLines splits content into lines, dropping the line terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
