package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Category groups error codes by how the caller is expected to react.
type Category string

const (
	CategoryValidation     Category = "VALIDATION"
	CategoryInfrastructure Category = "INFRA"
	CategoryStation        Category = "STATION"
	CategoryTask           Category = "TASK"
	CategoryIO             Category = "IO"
	CategoryConfig         Category = "CONFIG"
)

// Error categories
const (
	// Input validation errors (VALIDATION-001 to VALIDATION-099)
	ErrCodeInputInvalid      ErrorCode = "VALIDATION-001"
	ErrCodeTextTooShort      ErrorCode = "VALIDATION-002"
	ErrCodeLanguageInvalid   ErrorCode = "VALIDATION-003"
	ErrCodeStationRange      ErrorCode = "VALIDATION-004"
	ErrCodeStationUnknown    ErrorCode = "VALIDATION-005"
	ErrCodeCheckpointInvalid ErrorCode = "VALIDATION-006"

	// Infrastructure errors (INFRA-001 to INFRA-099)
	ErrCodeOutputDir         ErrorCode = "INFRA-001"
	ErrCodeTaskClientInit    ErrorCode = "INFRA-002"
	ErrCodeTaskClientMissing ErrorCode = "INFRA-003"
	ErrCodeStationGraph      ErrorCode = "INFRA-004"

	// Station errors (STATION-001 to STATION-099)
	ErrCodeStationFailed    ErrorCode = "STATION-001"
	ErrCodeStationPanic     ErrorCode = "STATION-002"
	ErrCodeSubTaskFailed    ErrorCode = "STATION-003"
	ErrCodeRunAborted       ErrorCode = "STATION-004"
	ErrCodeStationCancelled ErrorCode = "STATION-005"

	// Task client errors (TASK-001 to TASK-099)
	ErrCodeTaskAPI       ErrorCode = "TASK-001"
	ErrCodeTaskTimeout   ErrorCode = "TASK-002"
	ErrCodeTaskRateLimit ErrorCode = "TASK-003"
	ErrCodeTaskParse     ErrorCode = "TASK-004"
	ErrCodeTaskEmpty     ErrorCode = "TASK-005"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal   ErrorCode = "IO-003"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid   ErrorCode = "CONFIG-001"
	ErrCodeProfileNotFound ErrorCode = "CONFIG-002"
)

// Category returns the prefix of the code, e.g. VALIDATION for VALIDATION-002.
func (c ErrorCode) Category() Category {
	prefix, _, _ := strings.Cut(string(c), "-")
	return Category(prefix)
}

// DramascopeError represents an enhanced error with code, suggestions, and documentation
type DramascopeError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *DramascopeError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	if e.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", e.DocsURL)
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DramascopeError) Unwrap() error {
	return e.Cause
}

// Category returns the category of the error code.
func (e *DramascopeError) Category() Category {
	return e.Code.Category()
}

// New creates a new DramascopeError
func New(code ErrorCode, message string) *DramascopeError {
	return &DramascopeError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new DramascopeError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *DramascopeError {
	return &DramascopeError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *DramascopeError) WithSuggestion(suggestion string) *DramascopeError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *DramascopeError) WithSuggestions(suggestions ...string) *DramascopeError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *DramascopeError) WithDocs(url string) *DramascopeError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first DramascopeError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DramascopeError
	if stderrors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// HasCategory reports whether err carries a code of the given category.
func HasCategory(err error, category Category) bool {
	code, ok := CodeOf(err)
	return ok && code.Category() == category
}

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool {
	return HasCategory(err, CategoryValidation)
}

// IsInfrastructure reports whether err is an infrastructure error.
func IsInfrastructure(err error) bool {
	return HasCategory(err, CategoryInfrastructure)
}

// Common error constructors for frequently used errors

// NewInputInvalidError aggregates field problems into one validation error.
func NewInputInvalidError(problems ...error) *DramascopeError {
	return Wrap(ErrCodeInputInvalid, "invalid analysis input", stderrors.Join(problems...)).
		WithSuggestion("Provide screenplayText of at least 100 characters").
		WithSuggestion("Use language \"ar\" or \"en\"")
}

// NewOutputDirError creates an output directory error
func NewOutputDirError(path string, cause error) *DramascopeError {
	return Wrap(ErrCodeOutputDir, fmt.Sprintf("output directory unusable: %s", path), cause).
		WithSuggestion("Check that the parent directory exists and is writable").
		WithSuggestion("Pass --output-dir to use a different location")
}

// NewTaskClientMissingError creates an error for calls against an unconfigured client
func NewTaskClientMissingError() *DramascopeError {
	return New(ErrCodeTaskClientMissing, "no generative service credential configured").
		WithSuggestion("Set the GEMINI_API_KEY environment variable").
		WithSuggestion("Run 'dramascope health' to verify connectivity")
}

// NewTaskTimeoutError creates a task call timeout error
func NewTaskTimeoutError(model string, timeout string) *DramascopeError {
	return New(ErrCodeTaskTimeout, fmt.Sprintf("call to %s exceeded %s", model, timeout)).
		WithSuggestion("Use the robust preset for a longer per-call timeout")
}

// NewStationRangeError creates an invalid partial-run range error
func NewStationRangeError(start, end, total int) *DramascopeError {
	return New(ErrCodeStationRange, fmt.Sprintf("invalid station range %d..%d (stations are 1..%d)", start, end, total)).
		WithSuggestion("startFromStation must be <= endAtStation")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *DramascopeError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
