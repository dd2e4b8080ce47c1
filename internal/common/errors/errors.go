// Package errors provides the standardized error taxonomy of the grant assistant.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeStorageFailure           ErrorCode = "STORAGE_FAILURE"
	ErrCodeQuotaExceeded            ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeStructuralImportFailure  ErrorCode = "STRUCTURAL_IMPORT_FAILURE"
	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeSubsectionNotFound       ErrorCode = "SUBSECTION_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeSelectionMiss            ErrorCode = "SELECTION_MISS"
	ErrCodeConfigInvalid            ErrorCode = "CONFIG_INVALID"
	ErrCodeGenerationFailed         ErrorCode = "GENERATION_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Component packages wrap these with %w.
var (
	ErrStorageFailure           = stderrors.New(string(ErrCodeStorageFailure))
	ErrQuotaExceeded            = stderrors.New(string(ErrCodeQuotaExceeded))
	ErrStructuralImportFailure  = stderrors.New(string(ErrCodeStructuralImportFailure))
	ErrTemplateNotFound         = stderrors.New(string(ErrCodeTemplateNotFound))
	ErrSubsectionNotFound       = stderrors.New(string(ErrCodeSubsectionNotFound))
	ErrTemplateValidationFailed = stderrors.New(string(ErrCodeTemplateValidationFailed))
	ErrGenerationFailed         = stderrors.New(string(ErrCodeGenerationFailed))
)

// StandardError represents a structured application error.
type StandardError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Details     string                 `json:"details,omitempty"`
	Recoverable bool                   `json:"recoverable"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	cause       error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewStorageFailureError wraps a backend read/write failure.
func NewStorageFailureError(op, key string, err error) *StandardError {
	return &StandardError{
		Code:        ErrCodeStorageFailure,
		Message:     "Saving or loading your application data failed",
		Details:     fmt.Sprintf("op: %s, key: %s, error: %v", op, key, err),
		Recoverable: true,
		Timestamp:   time.Now().UTC(),
		cause:       err,
	}
}

// NewStructuralImportFailureError reports a malformed session or draft blob.
func NewStructuralImportFailureError(details string) *StandardError {
	return &StandardError{
		Code:        ErrCodeStructuralImportFailure,
		Message:     "The imported file is not a valid export",
		Details:     details,
		Recoverable: false,
		Timestamp:   time.Now().UTC(),
		cause:       ErrStructuralImportFailure,
	}
}

// NewTemplateNotFoundError reports an unregistered template id.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:        ErrCodeTemplateNotFound,
		Message:     "Template not found in registry",
		Details:     fmt.Sprintf("templateId: %s", templateID),
		Recoverable: false,
		Timestamp:   time.Now().UTC(),
		cause:       ErrTemplateNotFound,
	}
}

// NewSubsectionNotFoundError reports an unknown subsection of a known template.
func NewSubsectionNotFoundError(templateID, subsectionID string) *StandardError {
	return &StandardError{
		Code:        ErrCodeSubsectionNotFound,
		Message:     "Subsection not found in template",
		Details:     fmt.Sprintf("templateId: %s, subsectionId: %s", templateID, subsectionID),
		Recoverable: false,
		Timestamp:   time.Now().UTC(),
		cause:       ErrSubsectionNotFound,
	}
}

// NewTemplateValidationFailedError reports a registry file that fails its load checks.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:        ErrCodeTemplateValidationFailed,
		Message:     "Template registry is invalid",
		Details:     details,
		Recoverable: false,
		Timestamp:   time.Now().UTC(),
		cause:       ErrTemplateValidationFailed,
	}
}

// NewGenerationFailedError wraps a failure of the text-generation collaborator.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:        ErrCodeGenerationFailed,
		Message:     "Drafting text for this section failed",
		Details:     err.Error(),
		Recoverable: true,
		Timestamp:   time.Now().UTC(),
		cause:       err,
	}
}

func NewConfigInvalidError(details string) *StandardError {
	return &StandardError{
		Code:        ErrCodeConfigInvalid,
		Message:     "Configuration is invalid",
		Details:     details,
		Recoverable: false,
		Timestamp:   time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRecoverable reports whether a caller may retry or continue after the error.
func IsRecoverable(code ErrorCode) bool {
	switch code {
	case ErrCodeValidationFailed, ErrCodeStorageFailure, ErrCodeQuotaExceeded,
		ErrCodeSelectionMiss, ErrCodeGenerationFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "QUOTA"):
		return "STORAGE"
	case strings.Contains(codeStr, "IMPORT"):
		return "IMPORT"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "SUBSECTION") || strings.Contains(codeStr, "SELECTION"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIG"
	default:
		return "OTHER"
	}
}

// Normalize maps any error onto a StandardError, recognising wrapped sentinels.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	code := ErrCodeInternal
	message := "Something went wrong"
	switch {
	case stderrors.Is(err, ErrQuotaExceeded):
		code, message = ErrCodeQuotaExceeded, "Local storage is full"
	case stderrors.Is(err, ErrStorageFailure):
		code, message = ErrCodeStorageFailure, "Saving or loading your application data failed"
	case stderrors.Is(err, ErrStructuralImportFailure):
		code, message = ErrCodeStructuralImportFailure, "The imported file is not a valid export"
	case stderrors.Is(err, ErrTemplateNotFound):
		code, message = ErrCodeTemplateNotFound, "Template not found in registry"
	case stderrors.Is(err, ErrSubsectionNotFound):
		code, message = ErrCodeSubsectionNotFound, "Subsection not found in template"
	case stderrors.Is(err, ErrTemplateValidationFailed):
		code, message = ErrCodeTemplateValidationFailed, "Template registry is invalid"
	case stderrors.Is(err, ErrGenerationFailed):
		code, message = ErrCodeGenerationFailed, "Drafting text for this section failed"
	}

	return &StandardError{
		Code:        code,
		Message:     message,
		Details:     err.Error(),
		Recoverable: IsRecoverable(code),
		Timestamp:   time.Now().UTC(),
		cause:       err,
	}
}
