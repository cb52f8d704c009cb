package errors

import (
	"errors"
	"fmt"
	"html"
	"maps"
	"strings"
)

// Wrap wraps an error with additional context, creating a FactoryError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *FactoryError {
	if err == nil {
		return nil
	}

	// Preserve the diagnostic fields of an existing FactoryError.
	var fe *FactoryError
	if errors.As(err, &fe) {
		return &FactoryError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       fe,
			Context:     maps.Clone(fe.Context),
			FilePath:    fe.FilePath,
			Recoverable: fe.Recoverable && errType != ErrorTypeWrite,
		}
	}

	return &FactoryError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeResolution || errType == ErrorTypeCompile,
	}
}

// WrapStage wraps err so that it reports the pipeline stage that failed.
// The original error type is kept so fatal-vs-recoverable decisions still
// see it.
func WrapStage(err error, stage string) error {
	if err == nil {
		return nil
	}

	var fe *FactoryError
	if errors.As(err, &fe) {
		return &FactoryError{
			Type:        fe.Type,
			Code:        fe.Code,
			Message:     stage + " failed",
			Cause:       err,
			Stage:       stage,
			Recoverable: fe.Recoverable,
		}
	}

	return &FactoryError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: stage + " failed",
		Cause:   err,
		Stage:   stage,
	}
}

// FormatError formats an error for console display: the failing stage (if
// any), then the message chain, then compiler output verbatim.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	if stage := Stage(err); stage != "" {
		fmt.Fprintf(&b, "%s failed\n", stage)
	}

	var fe *FactoryError
	if errors.As(err, &fe) {
		b.WriteString(fe.Error())
		return b.String()
	}

	b.WriteString(err.Error())

	return b.String()
}

// FormatForBrowser renders an error as escaped text suitable for the
// live-reload error overlay.
func FormatForBrowser(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if out := Output(err); out != "" {
		var fe *FactoryError
		if errors.As(err, &fe) {
			msg = fe.Message + "\n\n" + out
		}
	}

	return html.EscapeString(msg)
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	var messages []string
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	combined := &FactoryError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("%d errors occurred: %s", len(nonNil), strings.Join(messages, "; ")),
		Cause:   errors.Join(nonNil...),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
		},
	}

	// A combined error is only as recoverable as its worst member.
	combined.Recoverable = true
	for _, err := range nonNil {
		if !IsRecoverable(err) {
			combined.Recoverable = false
		}
	}

	return combined
}
