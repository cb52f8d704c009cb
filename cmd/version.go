package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/elm-factory/internal/resolver"
	"github.com/conneroisu/elm-factory/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version, platform and the
Elm import parser compiled into this binary.

Examples:
  elm-factory version                # Show version information
  elm-factory version --short        # Version only
  elm-factory version --format json  # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.GetBuildInfo()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			*version.BuildInfo
			Parser string `json:"import_parser"`
		}{info, resolver.ParserName})
	case "text":
		if versionShort {
			cmd.Println(version.GetShortVersion())
			return nil
		}
		cmd.Println("elm-factory " + version.GetShortVersion())
		cmd.Println(info.String())
		cmd.Println("Import parser: " + resolver.ParserName)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
