package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/elm-factory/internal/errors"
)

// Compiler produces the compiled artifacts of the two entry points.
type Compiler interface {
	// CompileMain compiles the main program entry and returns the script.
	CompileMain(ctx context.Context, entry string) ([]byte, error)
	// CompileStyles runs the stylesheet program, writing its output into
	// outputDir, and returns the stylesheets it produced.
	CompileStyles(ctx context.Context, entry, outputDir string) ([]StyleFile, error)
}

// StyleFile is one stylesheet produced by the style compiler.
type StyleFile struct {
	// Name is the path relative to the style output directory.
	Name     string
	Contents []byte
}

// Command template placeholders.
const (
	PlaceholderEntry  = "{entry}"
	PlaceholderOutput = "{output}"
)

// ExecCompiler compiles by running external toolchain commands.
type ExecCompiler struct {
	mainCommand   string
	stylesCommand string
	dir           string
}

// NewExecCompiler creates a compiler running mainCommand and stylesCommand
// in dir. Commands are whitespace-separated templates with {entry} and
// {output} placeholders.
func NewExecCompiler(mainCommand, stylesCommand, dir string) *ExecCompiler {
	return &ExecCompiler{
		mainCommand:   mainCommand,
		stylesCommand: stylesCommand,
		dir:           dir,
	}
}

// CompileMain compiles entry to a temporary file and returns its contents.
func (c *ExecCompiler) CompileMain(ctx context.Context, entry string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "elm-factory-main-*")
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInternalError, "failed to create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	output := filepath.Join(tmpDir, strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))+".js")
	if _, err := runCommand(ctx, c.dir, c.mainCommand, map[string]string{
		PlaceholderEntry:  entry,
		PlaceholderOutput: output,
	}, errors.ErrCodeCompileFailed); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCompile, errors.ErrCodeCompileFailed,
			"main compile failed").WithFile(entry)
	}

	contents, err := os.ReadFile(output)
	if err != nil {
		return nil, errors.NewCompileError(errors.ErrCodeCompileFailed,
			"compiler produced no output", "", err).WithFile(entry)
	}

	return contents, nil
}

// CompileStyles runs the stylesheet program and collects every .css file
// written under outputDir, sorted by name.
func (c *ExecCompiler) CompileStyles(ctx context.Context, entry, outputDir string) ([]StyleFile, error) {
	if _, err := runCommand(ctx, c.dir, c.stylesCommand, map[string]string{
		PlaceholderEntry:  entry,
		PlaceholderOutput: outputDir,
	}, errors.ErrCodeCompileFailed); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCompile, errors.ErrCodeCompileFailed,
			"stylesheet compile failed").WithFile(entry)
	}

	return ReadStyleFiles(outputDir)
}

// ReadStyleFiles returns every .css file under dir, sorted by relative name.
func ReadStyleFiles(dir string) ([]StyleFile, error) {
	var files []StyleFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".css" {
			return nil
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, StyleFile{Name: filepath.ToSlash(rel), Contents: contents})

		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeCompileFailed, "failed to read compiled stylesheets", err).
			WithFile(dir)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

// ExpandCommand splits a command template into argv and substitutes the
// placeholders in each argument.
func ExpandCommand(template string, values map[string]string) []string {
	fields := strings.Fields(template)
	for i, f := range fields {
		for k, v := range values {
			f = strings.ReplaceAll(f, k, v)
		}
		fields[i] = f
	}

	return fields
}

// runCommand executes a command template and returns its combined output.
// A non-zero exit becomes a CompileError carrying the output verbatim.
func runCommand(ctx context.Context, dir, template string, values map[string]string, code string) ([]byte, error) {
	argv := ExpandCommand(template, values)
	if len(argv) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "empty command template")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s cancelled: %w", argv[0], ctx.Err())
		}

		return output, errors.NewCompileError(code,
			fmt.Sprintf("%s exited with error", argv[0]), string(output), err)
	}

	return output, nil
}
