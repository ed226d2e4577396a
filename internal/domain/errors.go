package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound     = fmt.Errorf("unknown tool")
	ErrMissingParameter = fmt.Errorf("missing required parameter")
	ErrInvalidToolCall  = fmt.Errorf("invalid tool call")
	ErrAgentDisabled    = fmt.Errorf("agent mode is not enabled")
	ErrBackupFailed     = fmt.Errorf("failed to create backup")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrAuditWrite       = fmt.Errorf("audit log write failed")

	// Safety gate rejections.
	ErrPathTraversal       = fmt.Errorf("path traversal detected")
	ErrPathNotAllowed      = fmt.Errorf("path is outside allowed directories")
	ErrPathForbidden       = fmt.Errorf("path is in a forbidden directory")
	ErrSensitivePath       = fmt.Errorf("access to potentially sensitive file is not allowed")
	ErrContentTooLarge     = fmt.Errorf("content exceeds maximum allowed size")
	ErrExtensionNotAllowed = fmt.Errorf("file extension is not allowed")
	ErrDangerousContent    = fmt.Errorf("content contains potentially dangerous pattern")
	ErrBinaryContent       = fmt.Errorf("content appears to contain binary data")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "SafetyManager.CheckToolCall")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// IsSafetyError reports whether err is a safety gate rejection.
func IsSafetyError(err error) bool {
	for _, s := range safetySentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

var safetySentinels = []error{
	ErrMissingParameter,
	ErrPathTraversal,
	ErrPathNotAllowed,
	ErrPathForbidden,
	ErrSensitivePath,
	ErrContentTooLarge,
	ErrExtensionNotAllowed,
	ErrDangerousContent,
	ErrBinaryContent,
}

// ErrorCode is a machine-parseable error category for logs and audit entries.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeMissingParameter   ErrorCode = "MISSING_PARAMETER"
	CodeInvalidToolCall    ErrorCode = "INVALID_TOOL_CALL"
	CodeAgentDisabled      ErrorCode = "AGENT_DISABLED"
	CodeBackupFailed       ErrorCode = "BACKUP_FAILED"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeAuditWrite         ErrorCode = "AUDIT_WRITE"
	CodePathTraversal      ErrorCode = "PATH_TRAVERSAL"
	CodePathNotAllowed     ErrorCode = "PATH_NOT_ALLOWED"
	CodePathForbidden      ErrorCode = "PATH_FORBIDDEN"
	CodeSensitivePath      ErrorCode = "SENSITIVE_PATH"
	CodeContentTooLarge    ErrorCode = "CONTENT_TOO_LARGE"
	CodeExtensionForbidden ErrorCode = "EXTENSION_NOT_ALLOWED"
	CodeDangerousContent   ErrorCode = "DANGEROUS_CONTENT"
	CodeBinaryContent      ErrorCode = "BINARY_CONTENT_REJECTED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrDuplicate:    CodeDuplicate,
	ErrInvalidInput: CodeInvalidInput,

	ErrToolNotFound:        CodeToolNotFound,
	ErrMissingParameter:    CodeMissingParameter,
	ErrInvalidToolCall:     CodeInvalidToolCall,
	ErrAgentDisabled:       CodeAgentDisabled,
	ErrBackupFailed:        CodeBackupFailed,
	ErrRateLimit:           CodeRateLimit,
	ErrConfigLoad:          CodeConfigLoad,
	ErrAuditWrite:          CodeAuditWrite,
	ErrPathTraversal:       CodePathTraversal,
	ErrPathNotAllowed:      CodePathNotAllowed,
	ErrPathForbidden:       CodePathForbidden,
	ErrSensitivePath:       CodeSensitivePath,
	ErrContentTooLarge:     CodeContentTooLarge,
	ErrExtensionNotAllowed: CodeExtensionForbidden,
	ErrDangerousContent:    CodeDangerousContent,
	ErrBinaryContent:       CodeBinaryContent,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
