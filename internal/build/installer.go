package build

import (
	"context"

	"github.com/conneroisu/elm-factory/internal/errors"
)

// Installer fetches the project's package dependencies.
type Installer interface {
	Install(ctx context.Context, cwd string) error
}

// ExecInstaller runs the configured install command. An empty command
// disables the step.
type ExecInstaller struct {
	Command string
}

// Install runs the install command in cwd.
func (i ExecInstaller) Install(ctx context.Context, cwd string) error {
	if i.Command == "" {
		return nil
	}

	if _, err := runCommand(ctx, cwd, i.Command, nil, errors.ErrCodeInstallFailed); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCompile, errors.ErrCodeInstallFailed, "package install failed")
	}

	return nil
}
