// Package errors provides the structured error type shared by every
// elm-factory component.
//
// Each failure is classified by an ErrorType (resolution, compile, write,
// config, io, internal). Components only construct and return these errors;
// the orchestrating layer (build and dev services) decides whether a given
// kind is fatal or recoverable.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeCompile    ErrorType = "compile"
	ErrorTypeWrite      ErrorType = "write"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// FactoryError is a structured error type with context.
type FactoryError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Stage    string
	FilePath string
	// Output holds compiler diagnostics verbatim.
	Output      string
	Recoverable bool
}

// Error implements the error interface.
func (e *FactoryError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Stage != "" {
		parts = append(parts, "stage:"+e.Stage)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	if e.Output != "" {
		result += "\n" + e.Output
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FactoryError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FactoryError) Is(target error) bool {
	var t *FactoryError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FactoryError) WithContext(key string, value interface{}) *FactoryError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile records the file the error refers to.
func (e *FactoryError) WithFile(filePath string) *FactoryError {
	e.FilePath = filePath

	return e
}

// WithStage records the pipeline stage that failed.
func (e *FactoryError) WithStage(stage string) *FactoryError {
	e.Stage = stage

	return e
}

// WithOutput attaches raw tool output.
func (e *FactoryError) WithOutput(output string) *FactoryError {
	e.Output = output

	return e
}

// Error creation functions

// NewResolutionError creates a dependency resolution error.
func NewResolutionError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeResolution,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewCompileError creates an error for a failed compiler invocation. The
// compiler's diagnostics are kept verbatim in Output.
func NewCompileError(code, message, output string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeCompile,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Output:      output,
		Recoverable: true,
	}
}

// NewWriteError creates an output write error. Never recoverable: a partially
// written output tree is unsafe to serve or ship.
func NewWriteError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeWrite,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *FactoryError {
	return &FactoryError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error classification

func hasType(err error, t ErrorType) bool {
	var fe *FactoryError
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Type == t {
			return true
		}
		err = fe.Cause
	}

	return false
}

// IsResolutionError reports whether err (or any cause) is a resolution error.
func IsResolutionError(err error) bool { return hasType(err, ErrorTypeResolution) }

// IsCompileError reports whether err (or any cause) is a compile error.
func IsCompileError(err error) bool { return hasType(err, ErrorTypeCompile) }

// IsWriteError reports whether err (or any cause) is a write error.
func IsWriteError(err error) bool { return hasType(err, ErrorTypeWrite) }

// IsConfigError reports whether err (or any cause) is a configuration error.
func IsConfigError(err error) bool { return hasType(err, ErrorTypeConfig) }

// IsRecoverable checks if an error is recoverable. Write errors anywhere in
// the chain make the whole error fatal.
func IsRecoverable(err error) bool {
	if IsWriteError(err) {
		return false
	}

	var fe *FactoryError
	if errors.As(err, &fe) {
		return fe.Recoverable
	}

	return false
}

// Stage returns the first pipeline stage recorded in the error chain.
func Stage(err error) string {
	var fe *FactoryError
	for err != nil {
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Stage != "" {
			return fe.Stage
		}
		err = fe.Cause
	}

	return ""
}

// Output returns the first compiler output recorded in the error chain.
func Output(err error) string {
	var fe *FactoryError
	for err != nil {
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Output != "" {
			return fe.Output
		}
		err = fe.Cause
	}

	return ""
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type. Recoverable kinds are
// warnings, everything else is an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var fe *FactoryError
	if !errors.As(err, &fe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", fe.Type, "code", fe.Code}
	if fe.Stage != "" {
		fields = append(fields, "stage", fe.Stage)
	}
	if fe.FilePath != "" {
		fields = append(fields, "file", fe.FilePath)
	}

	switch {
	case fe.Type == ErrorTypeResolution, fe.Type == ErrorTypeCompile:
		h.logger.Warn(ctx, err, string(fe.Type)+" error occurred", fields...)
	default:
		h.logger.Error(ctx, err, string(fe.Type)+" error occurred", fields...)
	}
}

// Common error codes.
const (
	ErrCodeEntryNotFound      = "ERR_ENTRY_NOT_FOUND"
	ErrCodeParseFailed        = "ERR_PARSE_FAILED"
	ErrCodeProjectFile        = "ERR_PROJECT_FILE"
	ErrCodeAssetNotFound      = "ERR_ASSET_NOT_FOUND"
	ErrCodeCompileFailed      = "ERR_COMPILE_FAILED"
	ErrCodeInstallFailed      = "ERR_INSTALL_FAILED"
	ErrCodeWriteFailed        = "ERR_WRITE_FAILED"
	ErrCodeCleanFailed        = "ERR_CLEAN_FAILED"
	ErrCodeMinifyFailed       = "ERR_MINIFY_FAILED"
	ErrCodeMissingArgument    = "ERR_MISSING_ARGUMENT"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeInvalidCommand     = "ERR_INVALID_COMMAND"
	ErrCodeBackendUnavailable = "ERR_BACKEND_UNAVAILABLE"
	ErrCodeInternalError      = "ERR_INTERNAL"
)

// ErrMissingArgument creates the ConfigError raised for a required argument
// that was not supplied.
func ErrMissingArgument(name string) *FactoryError {
	return NewConfigError(ErrCodeMissingArgument, "missing required argument: --"+name)
}

// ErrEntryNotFound creates the resolution error for a missing entry file.
func ErrEntryNotFound(path string, cause error) *FactoryError {
	return NewResolutionError(ErrCodeEntryNotFound, "entry not found", cause).WithFile(path)
}
