package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/elm-factory/internal/services"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build content-hashed production assets",
	Long: `Install packages, clean the output directory and compile the main
program and the stylesheets into content-hashed files.

Each artifact class gets a manifest mapping logical names to hashed files:
js-manifest.json and css-manifest.json. Files referenced through the asset
tag (AssetPath "...") and relative url(...) references in stylesheets are
copied under hashed names and their references rewritten.

Examples:
  elm-factory build                               # Build into dist/
  elm-factory build --public-path /static/        # Served under /static/
  elm-factory build --minify -o public            # Minified, into public/`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	addEntryFlags(buildCmd.Flags())
	addBuildFlags(buildCmd.Flags())
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, entryBindings, buildBindings)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	service, err := services.NewBuildService(cfg, services.BuildOptions{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := service.Build(ctx)
	if err != nil {
		return err
	}

	result.WriteSummary(cmd.OutOrStdout(), cfg.Build.OutputPath)

	return nil
}
