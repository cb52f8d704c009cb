package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/elm-factory/internal/logging"
	"github.com/conneroisu/elm-factory/internal/services"
)

var initCmd = &cobra.Command{
	Use:     "init <dir>",
	Aliases: []string{"i"},
	Short:   "Scaffold a new elm-factory project",
	Long: `Create a new project in dir with elm.json, a main program, an elm-css
stylesheet program, an asset module, an HTML shell template and a
.factory.yml configuration.

The directory is created if needed. A directory that is not empty is
refused unless --force is given; existing files with the same names are
then overwritten.

Examples:
  elm-factory init my-app           # Create my-app/
  elm-factory init . --force        # Scaffold into the current directory`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Write into a directory that is not empty")
}

func runInit(cmd *cobra.Command, args []string) error {
	service := services.NewInitService(logging.Discard())

	files, err := service.InitProject(cmd.Context(), services.InitOptions{
		ProjectDir: args[0],
		Force:      initForce,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Created project in %s\n", args[0])
	for _, f := range files {
		cmd.Printf("  %s\n", f)
	}
	cmd.Println()
	cmd.Println("Next steps:")
	cmd.Printf("  cd %s\n", args[0])
	cmd.Println("  elm-factory dev")

	return nil
}
