package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomatyss/chatter/internal/domain"
)

const opAuditLog = "FileAuditLogger.Log"

// RetentionPolicy bounds the audit file. Zero fields mean no limit.
type RetentionPolicy struct {
	MaxAge  time.Duration
	MaxSize int64 // bytes
}

// FileAuditLogger appends audit events to a JSONL file, one event per line.
// It satisfies domain.AuditLogger and the agent's ToolAuditor.
type FileAuditLogger struct {
	mu        sync.Mutex
	path      string
	file      *os.File // nil after Close
	retention RetentionPolicy
}

// NewFileAuditLogger opens path for appending, creating it with mode 0600.
// The parent directory must exist.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{path: path, file: f}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// SetRetention sets the policy applied by EnforceRetention.
func (a *FileAuditLogger) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	a.retention = policy
	a.mu.Unlock()
}

// Log appends event, stamping it with the current UTC time when unset. When
// ctx carries a recording span the event is mirrored onto it.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError(opAuditLog, domain.ErrAuditWrite, err.Error())
	}
	line = append(line, '\n')

	a.mu.Lock()
	if a.file == nil {
		a.mu.Unlock()
		return domain.NewDomainError(opAuditLog, domain.ErrAuditWrite, "logger closed")
	}
	_, err = a.file.Write(line)
	a.mu.Unlock()
	if err != nil {
		return domain.NewDomainError(opAuditLog, domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(spanAttrs(event)...))
	}
	return nil
}

func spanAttrs(event domain.AuditEvent) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(event.Detail)+3)
	if event.Resource != "" {
		attrs = append(attrs, attribute.String("audit.resource", event.Resource))
	}
	if event.Action != "" {
		attrs = append(attrs, attribute.String("audit.action", event.Action))
	}
	if event.Outcome != "" {
		attrs = append(attrs, attribute.String("audit.outcome", event.Outcome))
	}
	for k, v := range event.Detail {
		attrs = append(attrs, attribute.String("audit.detail."+k, v))
	}
	return attrs
}

// LogToolExecution records one dispatched call. outcome is "success",
// "failure" for a soft failure or "error" for a hard one. detail is copied.
func (a *FileAuditLogger) LogToolExecution(ctx context.Context, callID, tool, outcome string, detail map[string]string) error {
	d := make(map[string]string, len(detail)+1)
	maps.Copy(d, detail)
	if callID != "" {
		d["call_id"] = callID
	}
	return a.Log(ctx, domain.AuditEvent{
		Type:     domain.AuditToolExec,
		Actor:    "agent",
		Resource: tool,
		Action:   "execute",
		Outcome:  outcome,
		Detail:   d,
	})
}

// LogPolicyChange records a user-driven change to agent mode or the path
// lists.
func (a *FileAuditLogger) LogPolicyChange(ctx context.Context, eventType domain.AuditEventType, action, resource string) error {
	return a.Log(ctx, domain.AuditEvent{
		Type:     eventType,
		Actor:    "user",
		Resource: resource,
		Action:   action,
		Outcome:  "success",
	})
}

// Close closes the file. Later writes fail with ErrAuditWrite.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// EnforceRetention drops entries older than MaxAge, then the oldest entries
// until the file fits MaxSize. The file is rewritten through a temp file in
// the same directory and reopened for appending. Writers block meanwhile.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	policy := a.retention
	if policy.MaxAge <= 0 && policy.MaxSize <= 0 {
		return 0, nil
	}
	if a.file == nil {
		return 0, domain.NewDomainError("FileAuditLogger.EnforceRetention", domain.ErrAuditWrite, "logger closed")
	}
	if policy.MaxAge <= 0 {
		info, err := os.Stat(a.path)
		if err != nil {
			return 0, fmt.Errorf("stat audit log: %w", err)
		}
		if info.Size() <= policy.MaxSize {
			return 0, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = time.Now().Add(-policy.MaxAge)
	}

	src, err := os.Open(a.path)
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	kept, removed, err := retainEntries(src, cutoff, policy.MaxSize)
	src.Close()
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close audit log: %w", err)
	}
	rewriteErr := replaceFile(a.path, kept)
	f, err := openAppend(a.path)
	if err != nil {
		a.file = nil
		return 0, fmt.Errorf("reopen audit log: %w", err)
	}
	a.file = f
	if rewriteErr != nil {
		return 0, rewriteErr
	}
	return removed, nil
}

// retainEntries returns the lines to keep. Lines without a parseable
// timestamp are never dropped for age.
func retainEntries(r io.Reader, cutoff time.Time, maxSize int64) ([][]byte, int, error) {
	var (
		kept    [][]byte
		size    int64
		removed int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var stamp struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &stamp) == nil && !stamp.Timestamp.IsZero() && stamp.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
		size += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}

	if maxSize > 0 {
		drop := 0
		for drop < len(kept) && size > maxSize {
			size -= int64(len(kept[drop])) + 1
			drop++
		}
		kept = kept[drop:]
		removed += drop
	}
	return kept, removed, nil
}

func replaceFile(path string, lines [][]byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp audit log: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp audit log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}

var sizeUnits = []struct {
	suffix string
	scale  int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseRetentionMaxSize parses sizes such as "512", "10KB" or "5mb".
// The empty string means no limit.
func ParseRetentionMaxSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	scale := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, scale = strings.TrimSuffix(s, u.suffix), u.scale
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse size %q: not a non-negative byte count", s)
	}
	return n * scale, nil
}
