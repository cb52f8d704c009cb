package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "elm-factory",
	Short: "Build and develop Elm applications",
	Long: `elm-factory compiles an Elm program and its elm-css stylesheets into
content-hashed production assets, and runs a live-reloading dev server in
front of the Elm reactor.

Quick Start:
  elm-factory init my-app     Scaffold a new project
  elm-factory dev             Start the dev server
  elm-factory build           Build for production into dist/`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints a failure with its stage and
// compiler diagnostics.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.FormatError(err))
	}

	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .factory.yml, can also use FACTORY_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "log format (text, json)")

	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

// initConfig selects the config file and enables FACTORY_ environment
// overrides. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".factory")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig reads the configuration after binding the command's flags.
func loadConfig(cmd *cobra.Command, bindings ...[]flagBinding) (*config.Config, error) {
	if err := bindFlags(cmd, bindings...); err != nil {
		return nil, err
	}

	return config.Load()
}

// newLogger creates the logger described by the configuration.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}
