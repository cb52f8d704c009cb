package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/elm-factory/internal/config"
)

// flagBinding ties a command-line flag to its configuration key.
type flagBinding struct {
	flag string
	key  string
}

var entryBindings = []flagBinding{
	{"main", "main"},
	{"stylesheets", "stylesheets"},
}

var devBindings = []flagBinding{
	{"template", "template"},
	{"host", "dev.host"},
	{"port", "dev.port"},
	{"reactor-host", "dev.reactor_host"},
	{"reactor-port", "dev.reactor_port"},
	{"livereload-port", "dev.livereload_port"},
}

var buildBindings = []flagBinding{
	{"output-path", "build.output_path"},
	{"public-path", "build.public_path"},
	{"minify", "build.minify"},
}

// addEntryFlags adds the entry point flags shared by dev and build.
func addEntryFlags(flags *pflag.FlagSet) {
	flags.String("main", config.DefaultMain, "Main program entry")
	flags.String("stylesheets", config.DefaultStylesheets, "Stylesheet program entry")
}

func addDevFlags(flags *pflag.FlagSet) {
	flags.String("template", "", "HTML shell template (default built-in)")
	flags.String("host", config.DefaultHost, "Host the dev server binds to")
	flags.IntP("port", "p", config.DefaultPort, "Port the dev server listens on")
	flags.String("reactor-host", config.DefaultReactorHost, "Host of the reactor")
	flags.Int("reactor-port", config.DefaultReactorPort, "Port of the reactor")
	flags.Int("livereload-port", config.DefaultLivereloadPort, "Port of the live-reload server")
}

func addBuildFlags(flags *pflag.FlagSet) {
	flags.StringP("output-path", "o", config.DefaultOutputPath, "Output directory")
	flags.String("public-path", config.DefaultPublicPath, "URL prefix of the built files")
	flags.Bool("minify", false, "Minify scripts and stylesheets")
}

// bindFlags binds the command's flags to viper at run time, so commands
// sharing a flag name each bind their own instance.
func bindFlags(cmd *cobra.Command, bindings ...[]flagBinding) error {
	for _, group := range bindings {
		for _, b := range group {
			flag := cmd.Flags().Lookup(b.flag)
			if flag == nil {
				return fmt.Errorf("flag --%s is not defined on %s", b.flag, cmd.Name())
			}
			if err := viper.BindPFlag(b.key, flag); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", b.flag, err)
			}
		}
	}

	return nil
}
