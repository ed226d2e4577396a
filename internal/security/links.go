package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tomatyss/chatter/internal/domain"
)

// resolveLinks evaluates symlinks in an absolute path. A path that does not
// exist yet is resolved through its deepest existing ancestor. A dangling
// link is an error since writing through it would create its target.
func resolveLinks(path string) (string, error) {
	cur, rest := path, ""
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if info, lerr := os.Lstat(cur); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("dangling symlink %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// checkLinkTarget applies the allow and forbid lists to where a lexically
// approved path really points. Allowed roots are resolved the same way so
// a root reached through a symlink (macOS /var, for one) still matches.
// Callers hold s.mu.
func (s *SafetyManager) checkLinkTarget(normalized string) error {
	target, err := resolveLinks(normalized)
	if err != nil {
		return domain.NewDomainError(opCheck, domain.ErrPathNotAllowed, err.Error())
	}
	if target == normalized {
		return nil
	}

	allowed := false
	for _, root := range s.allowedRoots() {
		if r, err := resolveLinks(root); err == nil && hasPathPrefix(target, r) {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.NewDomainError(opCheck, domain.ErrPathNotAllowed,
			fmt.Sprintf("%s resolves to %s", normalized, target))
	}
	if s.isForbidden(target) {
		return domain.NewDomainError(opCheck, domain.ErrPathForbidden,
			fmt.Sprintf("%s resolves to %s", normalized, target))
	}
	return nil
}
