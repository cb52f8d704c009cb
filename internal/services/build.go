// Package services holds the command-level workflows: production builds,
// the dev session and project initialization.
package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/logging"
)

// BuildService runs production builds.
type BuildService struct {
	config       *config.Config
	orchestrator *build.Orchestrator
	logger       logging.Logger
}

// BuildOptions contains the collaborators of a BuildService. Zero values
// select the external toolchain.
type BuildOptions struct {
	// Root is the project directory. Defaults to the working directory.
	Root      string
	Compiler  build.Compiler
	Installer build.Installer
	Logger    logging.Logger
}

// BuildResult contains the result of a build operation.
type BuildResult struct {
	Report   *build.Report
	Duration time.Duration
}

// NewBuildService creates a build service for cfg.
func NewBuildService(cfg *config.Config, opts BuildOptions) (*BuildService, error) {
	if err := cfg.ValidateForBuild(); err != nil {
		return nil, err
	}

	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		opts.Root = wd
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Compiler == nil {
		opts.Compiler = build.NewExecCompiler(cfg.Compiler.MainCommand, cfg.Compiler.StylesCommand, opts.Root)
	}
	if opts.Installer == nil {
		opts.Installer = build.ExecInstaller{Command: cfg.Build.InstallCommand}
	}

	return &BuildService{
		config: cfg,
		orchestrator: build.NewOrchestrator(opts.Compiler,
			build.WithInstaller(opts.Installer),
			build.WithRoot(opts.Root),
			build.WithAssetTag(cfg.Assets.Tag),
			build.WithLogger(opts.Logger),
		),
		logger: opts.Logger,
	}, nil
}

// Build performs the complete production build. Output is cleaned before
// compiling and left untouched after a failure.
func (s *BuildService) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	report, err := s.orchestrator.Build(ctx, build.BuildOptions{
		Main:        s.config.Main,
		Stylesheets: s.config.Stylesheets,
		OutputPath:  s.config.Build.OutputPath,
		PublicPath:  s.config.Build.PublicPath,
		Minify:      s.config.Build.Minify,
	})
	if err != nil {
		return nil, err
	}

	return &BuildResult{Report: report, Duration: time.Since(start)}, nil
}

// WriteSummary prints the files written per artifact class.
func (r *BuildResult) WriteSummary(w io.Writer, outputPath string) {
	for _, result := range []*build.Result{r.Report.Styles, r.Report.Main} {
		if result == nil {
			continue
		}
		fmt.Fprintf(w, "%s (%d files, %s)\n", result.Class, len(result.Files), result.Duration.Round(time.Millisecond))
		for _, entry := range result.Manifest.Entries() {
			fmt.Fprintf(w, "  %s -> %s\n", entry.Name, entry.File)
		}
	}
	fmt.Fprintf(w, "Build completed in %s, output in %s\n", r.Duration.Round(time.Millisecond), outputPath)
}
