package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "FRPT1001"
	ErrCodeConnectionTimeout    ErrorCode = "FRPT1002"
	ErrCodeAuthenticationFailed ErrorCode = "FRPT1003"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "FRPT2001"
	ErrCodeConfigInvalid  ErrorCode = "FRPT2002"
	ErrCodeConfigMissing  ErrorCode = "FRPT2003"
	ErrCodeUnknownReport  ErrorCode = "FRPT2004"
	ErrCodeUnknownPeriod  ErrorCode = "FRPT2005"

	// Source errors (3xxx)
	ErrCodeSourceUnavailable ErrorCode = "FRPT3001"
	ErrCodeQueryFailed       ErrorCode = "FRPT3002"
	ErrCodeResultParsing     ErrorCode = "FRPT3003"

	// Sink errors (4xxx)
	ErrCodeSinkInvalid     ErrorCode = "FRPT4001"
	ErrCodeSinkWriteFailed ErrorCode = "FRPT4002"

	// Data quality (5xxx)
	ErrCodeRejectedRecords ErrorCode = "FRPT5001"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "FRPT9001"
	ErrCodeTimeout            ErrorCode = "FRPT9002"
	ErrCodeResourceExhausted  ErrorCode = "FRPT9003"
	ErrCodeServiceUnavailable ErrorCode = "FRPT9004"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Run cannot produce output
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed
	SeverityWarning  ErrorSeverity = "WARNING"  // Run completed with issues
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse endpoint is accessible",
			"Check the warehouse DSN in the configuration",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'flakereport config show' to inspect the effective configuration",
		)
}

// SourceError creates an error for an unreadable upstream table. Runs never
// emit partial output after one.
func SourceError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSourceUnavailable, message).
		WithSeverity(SeverityCritical).
		WithContext("query", truncateString(query, 200))

	msg := strings.ToLower(fmt.Sprint(cause))
	if strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found") || strings.Contains(msg, "no such table") {
		_ = err.WithSuggestions(
			"Verify the source table name in the report configuration",
			"Check that the upstream load for the reference date has finished",
		)
	} else if strings.Contains(msg, "timeout") {
		err.Code = ErrCodeTimeout
		_ = err.WithSuggestions(
			"Increase warehouse.timeout",
			"Check the warehouse size",
		)
	}

	return err
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
