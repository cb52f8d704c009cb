package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/elm-factory/internal/errors"
)

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old or the new file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError("create directory", dir, err)
	}

	// A unique temp name per call: both artifact classes may emit the same
	// hashed asset at once.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return writeError("create temp file", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return writeError("write temp file", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return writeError("close temp file", path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return writeError("chmod temp file", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return writeError("rename temp file", path, err)
	}

	return nil
}

// CheckOutputPath rejects an output directory that is, or contains, one of
// the protected paths. The output directory is removed before every
// production build, so it must never hold the project or its entries.
func CheckOutputPath(output string, protected ...string) error {
	if strings.TrimSpace(output) == "" {
		return errors.ErrMissingArgument("output-path")
	}

	out, err := filepath.Abs(filepath.Clean(output))
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid output path %q: %v", output, err))
	}

	for _, p := range protected {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(p))
		if err != nil {
			continue
		}
		if within(out, abs) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("output path %q would delete %q when cleaned", output, p))
		}
	}

	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// CleanDir removes dir and recreates it empty.
func CleanDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewWriteError(errors.ErrCodeCleanFailed, "failed to clean output directory", err).
			WithFile(dir)
	}

	return EnsureDir(dir)
}

// EnsureDir creates dir if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeError("create directory", dir, err)
	}

	return nil
}

// RemoveFiles deletes the named files from dir, ignoring files that are
// already gone.
func RemoveFiles(dir string, names []string) error {
	for _, name := range names {
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !os.IsNotExist(err) {
			return writeError("remove stale file", filepath.Join(dir, name), err)
		}
	}

	return nil
}

func writeError(op, path string, err error) error {
	return errors.NewWriteError(errors.ErrCodeWriteFailed, "failed to "+op, err).WithFile(path)
}
