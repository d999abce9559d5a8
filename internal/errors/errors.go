// Package errors provides the error taxonomy shared by the joat core.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Error Categories
// ============================================================

// Category defines the type of error for handling decisions.
type Category int

const (
	// CategoryTemporary errors are retryable (network timeouts, temporary failures)
	CategoryTemporary Category = iota

	// CategoryPermanent errors are not retryable (invalid input, not found)
	CategoryPermanent

	// CategoryUser errors are due to user input (validation, syntax)
	CategoryUser

	// CategorySystem errors are system-level (disk full, permissions)
	CategorySystem
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTemporary:
		return "temporary"
	case CategoryPermanent:
		return "permanent"
	case CategoryUser:
		return "user"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// ============================================================
// AppError - Main Error Type
// ============================================================

// AppError is the main error type for all joat errors.
type AppError struct {
	// Code is a unique error code for programmatic handling
	Code string

	// Message is a user-friendly error message
	Message string

	// Category determines how the error should be handled
	Category Category

	// Inner is the underlying error
	Inner error

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Suggestions are recovery suggestions for the user
	Suggestions []string

	// Context is additional debugging information
	Context map[string]interface{}

	// RetryAfter is the suggested delay before retry
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}

	sb.WriteString(e.Message)

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// Is checks if the target error is contained in this error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Inner, target)
}

// ============================================================
// Error Constructors
// ============================================================

// Wrap wraps an existing error with context.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, just add context
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:        code,
			Message:     message,
			Category:    category,
			Inner:       appErr,
			Retryable:   appErr.Retryable,
			Suggestions: appErr.Suggestions,
			Context:     copyContext(appErr.Context),
		}
	}

	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
		Inner:    err,
	}
}

// User creates a user input error.
func User(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  CategoryUser,
		Retryable: false,
	}
}

// ============================================================
// Builder Pattern for Fluent Error Construction
// ============================================================

// Builder provides fluent error construction.
type Builder struct {
	err *AppError
}

// NewBuilder starts building a new error.
func NewBuilder(code, message string) *Builder {
	return &Builder{
		err: &AppError{
			Code:     code,
			Message:  message,
			Category: CategoryTemporary,
			Context:  make(map[string]interface{}),
		},
	}
}

// Temporary marks the error as temporary/retryable.
func (b *Builder) Temporary() *Builder {
	b.err.Category = CategoryTemporary
	b.err.Retryable = true
	return b
}

// Permanent marks the error as permanent/non-retryable.
func (b *Builder) Permanent() *Builder {
	b.err.Category = CategoryPermanent
	b.err.Retryable = false
	return b
}

// User marks the error as a user input error.
func (b *Builder) User() *Builder {
	b.err.Category = CategoryUser
	b.err.Retryable = false
	return b
}

// Wrap sets the underlying error.
func (b *Builder) Wrap(err error) *Builder {
	b.err.Inner = err
	return b
}

// WithSuggestion adds a recovery suggestion.
func (b *Builder) WithSuggestion(suggestion string) *Builder {
	if b.err.Suggestions == nil {
		b.err.Suggestions = make([]string, 0)
	}
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

// WithContext adds context information.
func (b *Builder) WithContext(key string, value interface{}) *Builder {
	b.err.Context[key] = value
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Routing errors
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeConfigNotFound = "CONFIG_NOT_FOUND"

	// Backend errors
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeBackendTimeout       = "BACKEND_TIMEOUT"
	CodeBackendFailed        = "BACKEND_FAILED"
	CodeModelUnavailable     = "MODEL_UNAVAILABLE"
	CodeModelParseError      = "MODEL_PARSE_ERROR"
	CodeModelInvalidResponse = "MODEL_INVALID_RESPONSE"

	// Memory errors
	CodeArchiveUnavailable = "ARCHIVE_UNAVAILABLE"
	CodeArchiveFailed      = "ARCHIVE_FAILED"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidInput     = "INVALID_INPUT"
)

// ============================================================
// Taxonomy Constructors
// ============================================================

// ConfigurationError reports a malformed or incomplete mapping or profile.
// It is fatal to the profile involved, not to the process.
func ConfigurationError(message string) *AppError {
	return &AppError{
		Code:     CodeConfigInvalid,
		Message:  message,
		Category: CategoryUser,
		Context:  make(map[string]interface{}),
		Suggestions: []string{
			"Check the [routing.profiles] tables in your config",
		},
	}
}

// BackendUnavailable reports that the inference service could not be reached.
func BackendUnavailable(baseURL string, inner error) *AppError {
	return &AppError{
		Code:      CodeBackendUnavailable,
		Message:   "inference backend is not reachable",
		Category:  CategoryTemporary,
		Inner:     inner,
		Retryable: true,
		Context:   map[string]interface{}{"backend": baseURL},
		Suggestions: []string{
			"Start the backend with: ollama serve",
			fmt.Sprintf("Check that %s is the right backend URL", baseURL),
		},
	}
}

// ModelUnavailable reports that a model is not installed and could not be installed.
func ModelUnavailable(model string, inner error) *AppError {
	return &AppError{
		Code:     CodeModelUnavailable,
		Message:  fmt.Sprintf("model %q is not available", model),
		Category: CategorySystem,
		Inner:    inner,
		Context:  map[string]interface{}{"model": model},
		Suggestions: []string{
			fmt.Sprintf("Install it manually: ollama pull %s", model),
		},
	}
}

// BackendTimeout reports an invocation that exceeded its time bound.
func BackendTimeout(model string, timeout time.Duration, inner error) *AppError {
	return &AppError{
		Code:      CodeBackendTimeout,
		Message:   fmt.Sprintf("model %q did not answer within %s", model, timeout),
		Category:  CategoryTemporary,
		Inner:     inner,
		Retryable: true,
		Context:   map[string]interface{}{"model": model, "timeout": timeout.String()},
		Suggestions: []string{
			"Raise backend.timeout in your config",
			"Switch to the lightweight profile for faster models",
		},
	}
}

// ============================================================
// Helpers
// ============================================================

func copyContext(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// WithContext attaches a context value to the error and returns it.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HasCode reports whether any AppError in err's tree carries code.
// Joined errors are searched branch by branch.
func HasCode(err error, code string) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *AppError:
		return e != nil && (e.Code == code || HasCode(e.Inner, code))
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return HasCode(e.Unwrap(), code)
	default:
		return false
	}
}

// GetCode returns the code of the outermost AppError in err's chain.
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsConfigurationError reports a CONFIG_INVALID error.
func IsConfigurationError(err error) bool { return HasCode(err, CodeConfigInvalid) }

// IsBackendUnavailable reports a BACKEND_UNAVAILABLE error.
func IsBackendUnavailable(err error) bool { return HasCode(err, CodeBackendUnavailable) }

// IsModelUnavailable reports a MODEL_UNAVAILABLE error.
func IsModelUnavailable(err error) bool { return HasCode(err, CodeModelUnavailable) }

// IsBackendTimeout reports a BACKEND_TIMEOUT error.
func IsBackendTimeout(err error) bool { return HasCode(err, CodeBackendTimeout) }

// GetCategory extracts the category from an error.
// Returns CategoryTemporary for non-AppError errors.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryTemporary
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	// Default to temporary for unknown errors (safe default)
	return CategoryTemporary
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	// Default to retryable for unknown errors
	return true
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}

	return 0
}

// GetSuggestions returns recovery suggestions for an error.
func GetSuggestions(err error) []string {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Suggestions
	}

	return nil
}

// FormatUserMessage formats a user-friendly error message with suggestions.
func FormatUserMessage(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	var appErr *AppError
	if errors.As(err, &appErr) {
		sb.WriteString(appErr.Message)

		if len(appErr.Suggestions) > 0 {
			sb.WriteString("\n\nSuggestions:")
			for _, s := range appErr.Suggestions {
				sb.WriteString("\n  - ")
				sb.WriteString(s)
			}
		}

		return sb.String()
	}

	return err.Error()
}

// As is errors.As, re-exported so callers need only one errors import.
func As(err error, target any) bool { return errors.As(err, target) }

// Is is errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
