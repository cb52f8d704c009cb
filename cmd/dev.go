package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/elm-factory/internal/services"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d", "serve"},
	Short:   "Start the live-reloading dev server",
	Long: `Start the Elm reactor and a dev server in front of it.

Requests for Elm source files get an HTML shell that boots the module,
compiled scripts are proxied from the reactor with the live-reload client
injected, and everything else is passed through. Changes to the main
program reload the page; changes to the stylesheets are swapped in place.

Examples:
  elm-factory dev                          # Serve on 127.0.0.1:8000
  elm-factory dev --port 3000              # Serve on another port
  elm-factory dev --template index.html    # Use a custom HTML shell`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)

	addEntryFlags(devCmd.Flags())
	addDevFlags(devCmd.Flags())
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, entryBindings, devBindings)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	session, err := services.NewDevSession(cfg, services.DevOptions{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-session.Ready():
			cmd.Printf("Dev server running at %s\n", session.URL())
		case <-ctx.Done():
		}
	}()

	return session.Run(ctx)
}
