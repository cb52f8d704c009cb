package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryErrorError(t *testing.T) {
	err := NewCompileError(ErrCodeCompileFailed, "compiler exited with status 1",
		"-- TYPE MISMATCH ---- src/Main.elm", fmt.Errorf("exit status 1")).
		WithStage("main").
		WithFile("src/Main.elm")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_COMPILE_FAILED]")
	assert.Contains(t, msg, "stage:main")
	assert.Contains(t, msg, "src/Main.elm")
	assert.Contains(t, msg, "exit status 1")
	assert.Contains(t, msg, "-- TYPE MISMATCH ---- src/Main.elm")
}

func TestClassification(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		resolution  bool
		compile     bool
		write       bool
		config      bool
		recoverable bool
	}{
		{
			name:        "resolution",
			err:         ErrEntryNotFound("src/Main.elm", nil),
			resolution:  true,
			recoverable: true,
		},
		{
			name:        "compile",
			err:         NewCompileError(ErrCodeCompileFailed, "failed", "boom", nil),
			compile:     true,
			recoverable: true,
		},
		{
			name:  "write",
			err:   NewWriteError(ErrCodeWriteFailed, "disk full", nil),
			write: true,
		},
		{
			name:   "config",
			err:    ErrMissingArgument("main"),
			config: true,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("plain"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.resolution, IsResolutionError(tc.err))
			assert.Equal(t, tc.compile, IsCompileError(tc.err))
			assert.Equal(t, tc.write, IsWriteError(tc.err))
			assert.Equal(t, tc.config, IsConfigError(tc.err))
			assert.Equal(t, tc.recoverable, IsRecoverable(tc.err))
		})
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	compileErr := NewCompileError(ErrCodeCompileFailed, "failed", "diagnostics", nil)
	wrapped := fmt.Errorf("building styles: %w", WrapStage(compileErr, "styles"))

	assert.True(t, IsCompileError(wrapped))
	assert.Equal(t, "styles", Stage(wrapped))
	assert.Equal(t, "diagnostics", Output(wrapped))
	assert.True(t, IsRecoverable(wrapped))

	writeErr := Wrap(NewWriteError(ErrCodeWriteFailed, "rename failed", nil), ErrorTypeCompile, "X", "outer")
	assert.True(t, IsWriteError(writeErr))
	assert.False(t, IsRecoverable(writeErr))
}

func TestIs(t *testing.T) {
	a := NewConfigError(ErrCodeMissingArgument, "one")
	b := NewConfigError(ErrCodeMissingArgument, "two")
	c := NewConfigError(ErrCodeConfigInvalid, "three")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestWrapCopiesContext(t *testing.T) {
	cause := NewCompileError(ErrCodeCompileFailed, "compile failed", "", nil).
		WithContext("entry", "src/Main.elm")

	wrapped := Wrap(cause, ErrorTypeWrite, ErrCodeWriteFailed, "write failed").
		WithContext("output", "dist")

	assert.Equal(t, map[string]interface{}{"entry": "src/Main.elm", "output": "dist"}, wrapped.Context)
	assert.Equal(t, map[string]interface{}{"entry": "src/Main.elm"}, cause.Context)

	bare := Wrap(NewConfigError(ErrCodeConfigInvalid, "x"), ErrorTypeConfig, ErrCodeConfigInvalid, "y")
	assert.Nil(t, bare.Context)
}

func TestWrapStagePlainError(t *testing.T) {
	err := WrapStage(fmt.Errorf("boom"), "install")
	require.Error(t, err)
	assert.Equal(t, "install", Stage(err))
	assert.Contains(t, FormatError(err), "install failed")
	assert.Nil(t, WrapStage(nil, "install"))
}

func TestFormatForBrowser(t *testing.T) {
	err := NewCompileError(ErrCodeCompileFailed, "compile failed", "<bad> & worse", nil)
	out := FormatForBrowser(err)
	assert.Contains(t, out, "compile failed")
	assert.Contains(t, out, "&lt;bad&gt; &amp; worse")
	assert.Empty(t, FormatForBrowser(nil))
}

func TestCombineErrors(t *testing.T) {
	assert.Nil(t, CombineErrors(nil, nil))

	single := NewConfigError(ErrCodeConfigInvalid, "x")
	assert.Same(t, single, CombineErrors(nil, single))

	combined := CombineErrors(
		NewCompileError(ErrCodeCompileFailed, "styles", "", nil),
		NewWriteError(ErrCodeWriteFailed, "main", nil),
	)
	require.Error(t, combined)
	assert.Contains(t, combined.Error(), "2 errors occurred")
	assert.False(t, IsRecoverable(combined))
}

type recordingLogger struct {
	errors int
	warns  int
}

func (r *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.errors++
}

func (r *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	r.warns++
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewCompileError(ErrCodeCompileFailed, "x", "", nil))
	handler.Handle(ctx, NewResolutionError(ErrCodeParseFailed, "x", nil))
	handler.Handle(ctx, NewWriteError(ErrCodeWriteFailed, "x", nil))
	handler.Handle(ctx, fmt.Errorf("plain"))

	assert.Equal(t, 2, logger.warns)
	assert.Equal(t, 2, logger.errors)
}
