// Package scaffolding writes the files of a new elm-factory project.
package scaffolding

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/server"
)

// Names of the generated shell template and configuration file.
const (
	ShellTemplateName = "index.html"
	ConfigFileName    = ".factory.yml"
)

// ProjectGenerator writes project files.
type ProjectGenerator struct {
	templates []FileTemplate
}

// NewProjectGenerator creates a generator with the builtin templates.
func NewProjectGenerator() *ProjectGenerator {
	return &ProjectGenerator{templates: GetBuiltinTemplates()}
}

// Generate writes a new project into dir and returns the written paths,
// relative to dir. Existing files are overwritten.
func (g *ProjectGenerator) Generate(dir string) ([]string, error) {
	cfg := config.Default()
	cfg.Template = ShellTemplateName

	data := ProjectData{
		Name:        filepath.Base(dir),
		Title:       ProjectTitle(filepath.Base(dir)),
		Main:        cfg.Main,
		Stylesheets: cfg.Stylesheets,
		AssetTag:    cfg.Assets.Tag,
	}

	var written []string
	for _, ft := range g.templates {
		contents := []byte(ft.Content)
		if !ft.Literal {
			var err error
			if contents, err = render(ft, data); err != nil {
				return written, err
			}
		}
		if err := writeFile(dir, ft.Path, contents); err != nil {
			return written, err
		}
		written = append(written, ft.Path)
	}

	if err := writeFile(dir, ShellTemplateName, []byte(server.DefaultShellTemplate)); err != nil {
		return written, err
	}
	written = append(written, ShellTemplateName)

	configData, err := MarshalConfig(cfg)
	if err != nil {
		return written, err
	}
	if err := writeFile(dir, ConfigFileName, configData); err != nil {
		return written, err
	}
	written = append(written, ConfigFileName)

	return written, nil
}

// MarshalConfig renders cfg as the YAML config file.
func MarshalConfig(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# elm-factory configuration. Every key can be overridden with a\n")
	buf.WriteString("# FACTORY_ environment variable, e.g. FACTORY_DEV_PORT=9000.\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}

	return buf.Bytes(), nil
}

// ProjectTitle turns a directory name into a display title:
// "my-elm_app" becomes "My Elm App".
func ProjectTitle(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return "Elm App"
	}

	return cases.Title(language.English).String(strings.Join(words, " "))
}

func render(ft FileTemplate, data ProjectData) ([]byte, error) {
	tmpl, err := template.New(ft.Path).Parse(ft.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", ft.Path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", ft.Path, err)
	}

	return buf.Bytes(), nil
}

func writeFile(dir, rel string, contents []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := build.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	return build.WriteFileAtomic(path, contents, 0o644)
}
