// Package config provides configuration management for elm-factory using
// Viper for loading from files, environment variables and command-line
// flags.
//
// Values are read from (highest priority first) command-line flags bound
// with viper.BindPFlag, FACTORY_* environment variables, the file named by
// --config or FACTORY_CONFIG_FILE, and .factory.yml in the working
// directory. Keys are dotted section paths (dev.port, build.output_path).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/errors"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "FACTORY"

// Defaults.
const (
	DefaultMain              = "src/Main.elm"
	DefaultStylesheets       = "src/Stylesheets.elm"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8000
	DefaultReactorHost       = "127.0.0.1"
	DefaultReactorPort       = 8001
	DefaultLivereloadPort    = 35729
	DefaultReactorCommand    = "elm-reactor --address={host} --port={port}"
	DefaultReactorTimeout    = 30 * time.Second
	DefaultScriptPrefix      = "/_compile/"
	DefaultAPIPrefix         = "/api/"
	DefaultScratchPrefix     = "/_factory/"
	DefaultOutputPath        = "dist"
	DefaultPublicPath        = "/"
	DefaultInstallCommand    = "elm-package install --yes"
	DefaultMainCommand       = "elm-make {entry} --output={output} --yes"
	DefaultStylesCommand     = "elm-css {entry} --output {output}"
	DefaultAssetTag          = "AssetPath"
	DefaultDebounce          = 100 * time.Millisecond
	DefaultStabilityDuration = 500 * time.Millisecond
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultPageSuffixes are the request suffixes answered with the HTML shell.
var DefaultPageSuffixes = []string{".elm"}

type Config struct {
	Main        string         `mapstructure:"main" yaml:"main"`
	Stylesheets string         `mapstructure:"stylesheets" yaml:"stylesheets"`
	Template    string         `mapstructure:"template" yaml:"template,omitempty"`
	Dev         DevConfig      `mapstructure:"dev" yaml:"dev"`
	Build       BuildConfig    `mapstructure:"build" yaml:"build"`
	Compiler    CompilerConfig `mapstructure:"compiler" yaml:"compiler"`
	Assets      AssetsConfig   `mapstructure:"assets" yaml:"assets"`
	Watch       WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
}

type DevConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	ReactorHost    string        `mapstructure:"reactor_host" yaml:"reactor_host"`
	ReactorPort    int           `mapstructure:"reactor_port" yaml:"reactor_port"`
	LivereloadPort int           `mapstructure:"livereload_port" yaml:"livereload_port"`
	ReactorCommand string        `mapstructure:"reactor_command" yaml:"reactor_command"`
	ReactorTimeout time.Duration `mapstructure:"reactor_timeout" yaml:"reactor_timeout"`
	ScriptPrefix   string        `mapstructure:"script_prefix" yaml:"script_prefix"`
	APIPrefix      string        `mapstructure:"api_prefix" yaml:"api_prefix"`
	PageSuffixes   []string      `mapstructure:"page_suffixes" yaml:"page_suffixes"`
	// ScratchDir is where dev builds are written. Empty means a temporary
	// directory owned by the session.
	ScratchDir    string `mapstructure:"scratch_dir" yaml:"scratch_dir,omitempty"`
	ScratchPrefix string `mapstructure:"scratch_prefix" yaml:"scratch_prefix"`
}

type BuildConfig struct {
	OutputPath     string `mapstructure:"output_path" yaml:"output_path"`
	PublicPath     string `mapstructure:"public_path" yaml:"public_path"`
	Minify         bool   `mapstructure:"minify" yaml:"minify"`
	InstallCommand string `mapstructure:"install_command" yaml:"install_command"`
}

type CompilerConfig struct {
	MainCommand   string `mapstructure:"main_command" yaml:"main_command"`
	StylesCommand string `mapstructure:"styles_command" yaml:"styles_command"`
}

type AssetsConfig struct {
	Tag string `mapstructure:"tag" yaml:"tag"`
}

type WatchConfig struct {
	Debounce           time.Duration `mapstructure:"debounce" yaml:"debounce"`
	StabilityThreshold time.Duration `mapstructure:"stability_threshold" yaml:"stability_threshold"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	loadDefaults(cfg)
	// Not zero-filled by loadDefaults: an empty install command disables
	// the install step.
	cfg.Build.InstallCommand = DefaultInstallCommand

	return cfg
}

// SetDefaults registers every default with v so that environment variables
// are visible to Unmarshal even when no config file names the key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("main", d.Main)
	v.SetDefault("stylesheets", d.Stylesheets)
	v.SetDefault("template", d.Template)
	v.SetDefault("dev.host", d.Dev.Host)
	v.SetDefault("dev.port", d.Dev.Port)
	v.SetDefault("dev.reactor_host", d.Dev.ReactorHost)
	v.SetDefault("dev.reactor_port", d.Dev.ReactorPort)
	v.SetDefault("dev.livereload_port", d.Dev.LivereloadPort)
	v.SetDefault("dev.reactor_command", d.Dev.ReactorCommand)
	v.SetDefault("dev.reactor_timeout", d.Dev.ReactorTimeout)
	v.SetDefault("dev.script_prefix", d.Dev.ScriptPrefix)
	v.SetDefault("dev.api_prefix", d.Dev.APIPrefix)
	v.SetDefault("dev.page_suffixes", d.Dev.PageSuffixes)
	v.SetDefault("dev.scratch_dir", d.Dev.ScratchDir)
	v.SetDefault("dev.scratch_prefix", d.Dev.ScratchPrefix)
	v.SetDefault("build.output_path", d.Build.OutputPath)
	v.SetDefault("build.public_path", d.Build.PublicPath)
	v.SetDefault("build.minify", d.Build.Minify)
	v.SetDefault("build.install_command", d.Build.InstallCommand)
	v.SetDefault("compiler.main_command", d.Compiler.MainCommand)
	v.SetDefault("compiler.styles_command", d.Compiler.StylesCommand)
	v.SetDefault("assets.tag", d.Assets.Tag)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.stability_threshold", d.Watch.StabilityThreshold)
	v.SetDefault("watch.poll_interval", d.Watch.PollInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid configuration: %v", err))
	}

	// Viper leaves slices set via Set() as []interface{} in some paths.
	if v.IsSet("dev.page_suffixes") && len(config.Dev.PageSuffixes) == 0 {
		config.Dev.PageSuffixes = v.GetStringSlice("dev.page_suffixes")
	}

	loadDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadDefaults fills every zero-valued field that has a default.
func loadDefaults(config *Config) {
	if config.Main == "" {
		config.Main = DefaultMain
	}
	if config.Stylesheets == "" {
		config.Stylesheets = DefaultStylesheets
	}

	dev := &config.Dev
	if dev.Host == "" {
		dev.Host = DefaultHost
	}
	if dev.Port == 0 {
		dev.Port = DefaultPort
	}
	if dev.ReactorHost == "" {
		dev.ReactorHost = DefaultReactorHost
	}
	if dev.ReactorPort == 0 {
		dev.ReactorPort = DefaultReactorPort
	}
	if dev.LivereloadPort == 0 {
		dev.LivereloadPort = DefaultLivereloadPort
	}
	if dev.ReactorCommand == "" {
		dev.ReactorCommand = DefaultReactorCommand
	}
	if dev.ReactorTimeout == 0 {
		dev.ReactorTimeout = DefaultReactorTimeout
	}
	if dev.ScriptPrefix == "" {
		dev.ScriptPrefix = DefaultScriptPrefix
	}
	if dev.APIPrefix == "" {
		dev.APIPrefix = DefaultAPIPrefix
	}
	if len(dev.PageSuffixes) == 0 {
		dev.PageSuffixes = append([]string(nil), DefaultPageSuffixes...)
	}
	if dev.ScratchPrefix == "" {
		dev.ScratchPrefix = DefaultScratchPrefix
	}

	if config.Build.OutputPath == "" {
		config.Build.OutputPath = DefaultOutputPath
	}
	if config.Build.PublicPath == "" {
		config.Build.PublicPath = DefaultPublicPath
	}
	if config.Compiler.MainCommand == "" {
		config.Compiler.MainCommand = DefaultMainCommand
	}
	if config.Compiler.StylesCommand == "" {
		config.Compiler.StylesCommand = DefaultStylesCommand
	}
	if config.Assets.Tag == "" {
		config.Assets.Tag = DefaultAssetTag
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if config.Watch.StabilityThreshold == 0 {
		config.Watch.StabilityThreshold = DefaultStabilityDuration
	}
	if config.Watch.PollInterval == 0 {
		config.Watch.PollInterval = DefaultPollInterval
	}

	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

// validateConfig checks values that are wrong regardless of the command.
func validateConfig(config *Config) error {
	ports := []struct {
		name string
		port int
	}{
		{"dev.port", config.Dev.Port},
		{"dev.reactor_port", config.Dev.ReactorPort},
		{"dev.livereload_port", config.Dev.LivereloadPort},
	}
	for _, p := range ports {
		// 0 is allowed for system-assigned ports in tests.
		if p.port < 0 || p.port > 65535 {
			return invalid("%s %d is not in valid range 0-65535", p.name, p.port)
		}
	}

	for name, prefix := range map[string]string{
		"dev.script_prefix":  config.Dev.ScriptPrefix,
		"dev.api_prefix":     config.Dev.APIPrefix,
		"dev.scratch_prefix": config.Dev.ScratchPrefix,
	} {
		if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
			return invalid("%s %q must start and end with /", name, prefix)
		}
	}

	for _, suffix := range config.Dev.PageSuffixes {
		if suffix == "" {
			return invalid("dev.page_suffixes must not contain empty entries")
		}
	}

	if config.Watch.Debounce < 0 || config.Watch.StabilityThreshold < 0 || config.Watch.PollInterval < 0 {
		return invalid("watch durations must not be negative")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q must be text or json", config.Log.Format)
	}

	if strings.ContainsAny(config.Assets.Tag, " ()\"'") {
		return invalid("assets.tag %q is not a valid identifier", config.Assets.Tag)
	}

	return nil
}

// ValidateForDev checks the arguments the dev command requires.
func (c *Config) ValidateForDev() error {
	if strings.TrimSpace(c.Main) == "" {
		return errors.ErrMissingArgument("main")
	}
	if strings.TrimSpace(c.Stylesheets) == "" {
		return errors.ErrMissingArgument("stylesheets")
	}
	if c.Dev.Host == "" {
		return errors.ErrMissingArgument("host")
	}
	if c.Dev.Port == c.Dev.ReactorPort && c.Dev.Host == c.Dev.ReactorHost && c.Dev.Port != 0 {
		return invalid("dev.port and dev.reactor_port must differ (both %d)", c.Dev.Port)
	}
	if c.Dev.ReactorCommand == "" {
		return invalid("dev.reactor_command must not be empty")
	}

	return nil
}

// ValidateForBuild checks the arguments the build command requires.
func (c *Config) ValidateForBuild() error {
	if strings.TrimSpace(c.Main) == "" {
		return errors.ErrMissingArgument("main")
	}
	if strings.TrimSpace(c.Stylesheets) == "" {
		return errors.ErrMissingArgument("stylesheets")
	}
	if strings.TrimSpace(c.Build.OutputPath) == "" {
		return errors.ErrMissingArgument("output-path")
	}
	if strings.TrimSpace(c.Build.PublicPath) == "" {
		return errors.ErrMissingArgument("public-path")
	}
	if err := build.CheckOutputPath(c.Build.OutputPath, ".", c.Main, c.Stylesheets); err != nil {
		return err
	}
	if c.Compiler.MainCommand == "" || c.Compiler.StylesCommand == "" {
		return invalid("compiler commands must not be empty")
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
}
