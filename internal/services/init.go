package services

import (
	"context"
	"fmt"
	"os"

	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
	"github.com/conneroisu/elm-factory/internal/scaffolding"
)

// InitService handles project initialization.
type InitService struct {
	generator *scaffolding.ProjectGenerator
	logger    logging.Logger
}

// NewInitService creates a new initialization service.
func NewInitService(logger logging.Logger) *InitService {
	if logger == nil {
		logger = logging.Discard()
	}

	return &InitService{
		generator: scaffolding.NewProjectGenerator(),
		logger:    logger.WithComponent("init"),
	}
}

// InitOptions contains options for project initialization.
type InitOptions struct {
	ProjectDir string
	// Force allows writing into a directory that is not empty.
	Force bool
}

// InitProject scaffolds a new project and returns the files written.
func (s *InitService) InitProject(ctx context.Context, opts InitOptions) ([]string, error) {
	if opts.ProjectDir == "" {
		return nil, errors.ErrMissingArgument("dir")
	}

	if err := s.validateProjectDirectory(opts.ProjectDir, opts.Force); err != nil {
		return nil, err
	}

	files, err := s.generator.Generate(opts.ProjectDir)
	if err != nil {
		return files, errors.Wrap(err, errors.ErrorTypeWrite, errors.ErrCodeWriteFailed,
			"project scaffolding failed").WithFile(opts.ProjectDir)
	}

	s.logger.Info(ctx, "Project initialized", "dir", opts.ProjectDir, "files", len(files))

	return files, nil
}

// validateProjectDirectory creates the directory, or checks that an
// existing one is empty unless force is set.
func (s *InitService) validateProjectDirectory(dir string, force bool) error {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewWriteError(errors.ErrCodeWriteFailed, "cannot create project directory", err).
				WithFile(dir)
		}
		return nil
	case err != nil:
		return errors.NewIOError(errors.ErrCodeInvalidCommand, "cannot read project directory", err).
			WithFile(dir)
	}

	if len(entries) > 0 && !force {
		return errors.NewConfigError(errors.ErrCodeInvalidCommand,
			fmt.Sprintf("directory %s is not empty (use --force to write into it)", dir))
	}

	return nil
}
