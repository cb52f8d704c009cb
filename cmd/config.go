package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/scaffolding"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect elm-factory configuration",
	Long: `Inspect the configuration resolved from flags, FACTORY_* environment
variables, the config file and defaults.

Examples:
  elm-factory config show                  # Show the effective configuration
  elm-factory config show --format json    # ... as JSON
  elm-factory config validate              # Check it for dev and build`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration file for correctness. With --file, only that
file (plus environment overrides and defaults) is checked.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var (
	configFormat string
	configFile   string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "", "Configuration file to validate")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch configFormat {
	case "yaml", "yml":
		data, err := scaffolding.MarshalConfig(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	case "json":
		return showConfigJSON(cmd, cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}

// showConfigJSON prints cfg with the same keys as the config file.
func showConfigJSON(cmd *cobra.Command, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	return encoder.Encode(tree)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if configFile != "" {
		v = viper.New()
		v.SetConfigFile(configFile)
		v.SetEnvPrefix(config.EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		config.SetDefaults(v)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDev(); err != nil {
		return fmt.Errorf("dev: %w", err)
	}
	if err := cfg.ValidateForBuild(); err != nil {
		return fmt.Errorf("build: %w", err)
	}

	cmd.Println("Configuration is valid.")

	return nil
}
