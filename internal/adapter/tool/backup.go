package tool

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/tomatyss/chatter/internal/domain"
)

// BackupTimeFormat is the UTC timestamp suffix of backup files.
const BackupTimeFormat = "20060102_150405"

// BackupPath returns the sibling backup name for path at t:
// "<dir>/<name>.backup_<YYYYMMDD_HHMMSS>".
func BackupPath(path string, t time.Time) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.backup_%s", filepath.Base(path), t.UTC().Format(BackupTimeFormat)))
}

// createBackup copies path to its timestamped sibling if path is an
// existing regular file. It returns "" when there was nothing to back up.
func createBackup(backend FilesystemBackend, path string, now time.Time) (string, error) {
	info, err := backend.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil
	}

	data, err := backend.ReadFile(path)
	if err != nil {
		return "", domain.NewDomainError("Registry.backup", domain.ErrBackupFailed, err.Error())
	}
	dst := BackupPath(path, now)
	if err := backend.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return "", domain.NewDomainError("Registry.backup", domain.ErrBackupFailed, err.Error())
	}
	return dst, nil
}
