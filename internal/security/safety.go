package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tomatyss/chatter/internal/domain"
)

const opCheck = "SafetyManager.CheckToolCall"

// maxControlRatio is the share of control characters above which content is
// treated as binary.
const maxControlRatio = 0.1

// defaultForbiddenPaths are OS locations no tool may touch.
var defaultForbiddenPaths = []string{
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/boot",
	"/dev",
	"/proc",
	"/sys",
	"/var/log",
	"/var/lib",
	"/root",
	"/home/*/.ssh",
	"/home/*/.gnupg",
	`C:\Windows`,
	`C:\Program Files`,
	`C:\Program Files (x86)`,
	`C:\System32`,
}

var sensitiveFragments = []string{
	"passwd", "shadow", "hosts", "sudoers", "ssh_config", "authorized_keys",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519", ".env", "config.json",
	"database.yml", "secrets.yml", "private.key", "certificate.pem",
}

var dangerousPatterns = []string{
	"rm -rf", "del /s", "format c:", "dd if=", ":(){ :|:& };:",
	"sudo rm", "chmod 777", "wget http", "curl http",
	"eval(", "exec(", "system(", "shell_exec(",
	"<script", "javascript:", "data:text/html",
}

// forbiddenEntry is a literal prefix or a compiled wildcard pattern.
type forbiddenEntry struct {
	raw     string
	prefix  string
	pattern *regexp.Regexp
}

// SafetyManager gate-keeps tool calls against path, extension, size and
// content rules. Allow and forbid lists are append-only.
type SafetyManager struct {
	mu        sync.RWMutex
	cfg       domain.AgentConfig
	allowed   []string
	forbidden []forbiddenEntry
	logger    *slog.Logger
}

// NewSafetyManager creates a manager that allows the working directory and
// forbids the built-in system locations.
func NewSafetyManager(cfg domain.AgentConfig, logger *slog.Logger) (*SafetyManager, error) {
	norm, err := cfg.Normalized()
	if err != nil {
		return nil, fmt.Errorf("safety manager: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &SafetyManager{
		cfg:     norm,
		allowed: []string{norm.WorkingDirectory},
		logger:  logger,
	}
	for _, p := range defaultForbiddenPaths {
		s.forbidden = append(s.forbidden, s.compileForbidden(p))
	}

	if s.isForbidden(norm.WorkingDirectory) {
		logger.Warn("working directory is inside a forbidden location; file tools will refuse it",
			"working_directory", norm.WorkingDirectory)
	}
	return s, nil
}

// Config returns the normalized configuration the manager was built from.
func (s *SafetyManager) Config() domain.AgentConfig {
	return s.cfg
}

// CheckToolCall validates a call. Checks run in a fixed order and stop at the
// first failure; the returned error wraps one of the domain safety sentinels.
func (s *SafetyManager) CheckToolCall(call domain.ToolCall) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var path string
	if isFileOperation(call.Tool) {
		p, ok := call.StringParam("path")
		if !ok || p == "" {
			return domain.NewDomainError(opCheck, domain.ErrMissingParameter, "path")
		}
		path = p
		if err := s.checkFilePath(path); err != nil {
			return err
		}
	}

	if isWriteOperation(call.Tool) {
		if err := s.checkSize(call); err != nil {
			return err
		}
	}

	if isFileOperation(call.Tool) {
		if err := s.checkExtension(path); err != nil {
			return err
		}
	}

	if isWriteOperation(call.Tool) {
		if err := s.checkContent(call); err != nil {
			return err
		}
	}

	if param, ok := scopedDirectoryParam(call.Tool); ok {
		dir, _ := call.StringParam(param)
		if dir == "" {
			dir = "."
		}
		if _, err := s.checkScope(dir); err != nil {
			return err
		}
	}

	return nil
}

// WouldAllowPath reports whether path passes the allow and forbid lists.
// Errors during resolution count as a refusal.
func (s *SafetyManager) WouldAllowPath(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized, err := normalizePath(s.absolute(path))
	if err != nil {
		return false
	}
	return s.isAllowed(normalized) && !s.isForbidden(normalized) && s.checkLinkTarget(normalized) == nil
}

// AllowsWalkEntry reports whether a directory walk may descend into or open
// path. Files must also pass the sensitive-name rule read_file applies.
func (s *SafetyManager) AllowsWalkEntry(path string, isDir bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized, err := normalizePath(s.absolute(path))
	if err != nil {
		return false
	}
	if !s.isAllowed(normalized) || s.isForbidden(normalized) || s.checkLinkTarget(normalized) != nil {
		return false
	}
	if isDir {
		return true
	}
	return !hasSensitiveFragment(normalized)
}

// AddAllowedPath appends an allowed prefix. Relative entries are resolved
// against the process working directory when checked.
func (s *SafetyManager) AddAllowedPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed = append(s.allowed, path)
}

// AddForbiddenPath appends a forbidden prefix or wildcard pattern.
func (s *SafetyManager) AddForbiddenPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbidden = append(s.forbidden, s.compileForbidden(path))
}

// AllowedPaths returns a copy of the allow list.
func (s *SafetyManager) AllowedPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.allowed)
}

// ForbiddenPaths returns a copy of the forbid list as configured.
func (s *SafetyManager) ForbiddenPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.forbidden))
	for i, f := range s.forbidden {
		out[i] = f.raw
	}
	return out
}

func (s *SafetyManager) checkFilePath(raw string) error {
	normalized, err := s.checkScope(raw)
	if err != nil {
		return err
	}

	if hasSensitiveFragment(normalized) {
		return domain.NewDomainError(opCheck, domain.ErrSensitivePath, normalized)
	}
	return nil
}

func hasSensitiveFragment(path string) bool {
	lower := strings.ToLower(path)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// checkScope resolves raw and verifies it sits inside the allowed area.
func (s *SafetyManager) checkScope(raw string) (string, error) {
	normalized, err := normalizePath(s.absolute(raw))
	if err != nil {
		return "", domain.NewDomainError(opCheck, domain.ErrPathTraversal, raw)
	}
	if strings.Contains(raw, "..") {
		return "", domain.NewDomainError(opCheck, domain.ErrPathTraversal, raw)
	}
	if !s.isAllowed(normalized) {
		return "", domain.NewDomainError(opCheck, domain.ErrPathNotAllowed, normalized)
	}
	if s.isForbidden(normalized) {
		return "", domain.NewDomainError(opCheck, domain.ErrPathForbidden, normalized)
	}
	if err := s.checkLinkTarget(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func (s *SafetyManager) checkSize(call domain.ToolCall) error {
	for _, name := range []string{"content", "replacement"} {
		v, ok := call.StringParam(name)
		if !ok {
			continue
		}
		if len(v) > s.cfg.MaxFileSize {
			return domain.NewDomainError(opCheck, domain.ErrContentTooLarge,
				fmt.Sprintf("%s is %d bytes, limit %d", name, len(v), s.cfg.MaxFileSize))
		}
	}
	return nil
}

func (s *SafetyManager) checkExtension(path string) error {
	ext, ok := extensionOf(path)
	if !ok {
		return nil
	}
	if !slices.Contains(s.cfg.AllowedExtensions, strings.ToLower(ext)) {
		return domain.NewDomainError(opCheck, domain.ErrExtensionNotAllowed,
			fmt.Sprintf("%q (allowed: %s)", ext, strings.Join(s.cfg.AllowedExtensions, ", ")))
	}
	return nil
}

func (s *SafetyManager) checkContent(call domain.ToolCall) error {
	for _, name := range []string{"content", "replacement"} {
		v, ok := call.StringParam(name)
		if !ok {
			continue
		}
		lower := strings.ToLower(v)
		for _, pat := range dangerousPatterns {
			if strings.Contains(lower, pat) {
				return domain.NewDomainError(opCheck, domain.ErrDangerousContent, fmt.Sprintf("%q", pat))
			}
		}
		if ratio := controlRatio(v); ratio > maxControlRatio {
			return domain.NewDomainError(opCheck, domain.ErrBinaryContent,
				fmt.Sprintf("%d%% non-text characters", int(ratio*100)))
		}
	}
	return nil
}

func (s *SafetyManager) absolute(path string) string {
	if filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return path
	}
	// Join without cleaning so ".." components reach normalizePath intact.
	return s.cfg.WorkingDirectory + string(filepath.Separator) + path
}

func (s *SafetyManager) isAllowed(path string) bool {
	for _, root := range s.allowedRoots() {
		if hasPathPrefix(path, root) {
			return true
		}
	}
	return false
}

// allowedRoots returns the allow list as normalized absolute paths.
// Relative entries resolve against the process working directory.
func (s *SafetyManager) allowedRoots() []string {
	roots := make([]string, 0, len(s.allowed))
	for _, a := range s.allowed {
		abs := a
		if !filepath.IsAbs(abs) {
			wd, err := os.Getwd()
			if err != nil {
				continue
			}
			abs = wd + string(filepath.Separator) + abs
		}
		norm, err := normalizePath(abs)
		if err != nil {
			continue
		}
		roots = append(roots, norm)
	}
	return roots
}

func (s *SafetyManager) isForbidden(path string) bool {
	for _, f := range s.forbidden {
		if f.pattern != nil {
			if f.pattern.MatchString(path) {
				return true
			}
			continue
		}
		if hasPathPrefix(path, f.prefix) {
			return true
		}
	}
	return false
}

func (s *SafetyManager) compileForbidden(raw string) forbiddenEntry {
	entry := forbiddenEntry{raw: raw}
	if strings.Contains(raw, "*") {
		parts := strings.Split(raw, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		// Anchored at the start; must end on a component boundary.
		expr := "^" + strings.Join(parts, ".*") + `(?:[/\\]|$)`
		re, err := regexp.Compile(expr)
		if err != nil {
			s.logger.Warn("ignoring invalid forbidden pattern", "pattern", raw, "error", err)
			return entry
		}
		entry.pattern = re
		return entry
	}

	entry.prefix = raw
	switch {
	case filepath.IsAbs(raw):
		if norm, err := normalizePath(raw); err == nil {
			entry.prefix = norm
		}
	case isWindowsPath(raw):
		// Foreign-OS entry; kept literal.
	default:
		if norm, err := normalizePath(s.absolute(raw)); err == nil {
			entry.prefix = norm
		}
	}
	return entry
}

// normalizePath resolves "." and ".." lexically. Popping above the root is
// an error rather than being clamped.
func normalizePath(path string) (string, error) {
	vol := filepath.VolumeName(path)
	rest := filepath.ToSlash(path[len(vol):])

	var stack []string
	for _, part := range strings.Split(rest, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return "", fmt.Errorf("path %q escapes the root directory", path)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	sep := string(filepath.Separator)
	return vol + sep + strings.Join(stack, sep), nil
}

// hasPathPrefix matches whole components: /tmp/ab is not under /tmp/a.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	if strings.HasSuffix(prefix, "/") || strings.HasSuffix(prefix, `\`) {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func isWindowsPath(p string) bool {
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// extensionOf returns the extension without the dot and whether the name
// has one. Dotfiles such as ".bashrc" have none; "notes." has an empty one.
func extensionOf(path string) (string, bool) {
	trimmed := strings.TrimLeft(filepath.Base(path), ".")
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return "", false
	}
	return trimmed[i+1:], true
}

func controlRatio(s string) float64 {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return 0
	}
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			n++
		}
	}
	return float64(n) / float64(total)
}

func isFileOperation(tool string) bool {
	switch tool {
	case domain.ToolReadFile, domain.ToolWriteFile, domain.ToolUpdateFile, domain.ToolFileInfo:
		return true
	}
	return false
}

func isWriteOperation(tool string) bool {
	return tool == domain.ToolWriteFile || tool == domain.ToolUpdateFile
}

// scopedDirectoryParam names the directory parameter of tools that walk a tree.
func scopedDirectoryParam(tool string) (string, bool) {
	switch tool {
	case domain.ToolSearchFiles:
		return "directory", true
	case domain.ToolListDirectory:
		return "path", true
	}
	return "", false
}
