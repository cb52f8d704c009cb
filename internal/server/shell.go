package server

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/resolver"
)

// DefaultShellTemplate boots the requested module with whatever API the
// compiled program exposes (init or fullscreen).
const DefaultShellTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
{{- range .Styles}}
  <link rel="stylesheet" data-factory-style="{{.Name}}" href="{{.URL}}">
{{- end}}
</head>
<body>
  <script src="{{.Script}}"></script>
  <script>
    (function () {
      var program = {{.ModuleName}}.split(".").reduce(function (o, k) { return o && o[k]; }, window.Elm);
      if (!program) { return; }
      if (program.init) { program.init({ node: document.body.appendChild(document.createElement("div")) }); }
      else if (program.fullscreen) { program.fullscreen(); }
    })();
  </script>
</body>
</html>
`

// StyleLink is one stylesheet of the shell.
type StyleLink struct {
	// Name is the stylesheet's manifest key.
	Name string
	URL  string
}

// ShellData is the data the shell template is executed with.
type ShellData struct {
	Title string
	// Module is the requested source path, slash-separated and relative.
	Module     string
	ModuleName string
	// Script is the hashed dev build for the main entry, otherwise the
	// backend's on-demand compile URL.
	Script     string
	CompileURL string
	Styles     []StyleLink
}

// ShellConfig configures a Shell.
type ShellConfig struct {
	// Main is the main entry path relative to the working directory.
	Main          string
	ScratchDir    string
	ScratchPrefix string
	ScriptPrefix  string
	// LivereloadScript is injected into every rendered page when set.
	LivereloadScript string
}

// Shell renders the HTML page served for source-file requests.
type Shell struct {
	tmpl *template.Template
	cfg  ShellConfig
	main string
}

// LoadShellTemplate parses the template file at path, or the default
// template when path is empty.
func LoadShellTemplate(path string) (*template.Template, error) {
	if path == "" {
		return template.New("shell").Parse(DefaultShellTemplate)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shell template: %w", err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("parse shell template %s: %w", path, err)
	}

	return tmpl, nil
}

// NewShell creates a shell around tmpl.
func NewShell(tmpl *template.Template, cfg ShellConfig) *Shell {
	return &Shell{tmpl: tmpl, cfg: cfg, main: cleanModulePath(cfg.Main)}
}

// Data assembles the template data for a request of modulePath, reading
// the current dev manifests from the scratch directory.
func (s *Shell) Data(modulePath string) (ShellData, error) {
	module := cleanModulePath(modulePath)
	base := path.Base(module)
	moduleName, err := resolver.ModuleName(filepath.FromSlash(module))
	if err != nil {
		return ShellData{}, err
	}

	data := ShellData{
		Title:      strings.TrimSuffix(base, path.Ext(base)),
		Module:     module,
		ModuleName: moduleName,
		CompileURL: s.cfg.ScriptPrefix + module,
	}
	data.Script = data.CompileURL

	if module == s.main {
		scripts, err := s.manifest(build.ScriptManifestName)
		if err != nil {
			return ShellData{}, err
		}
		if files := scripts.Files(); len(files) > 0 {
			data.Script = build.GetPublicPath(s.cfg.ScratchPrefix, files[0])
		}
	}

	styles, err := s.manifest(build.StyleManifestName)
	if err != nil {
		return ShellData{}, err
	}
	for _, e := range styles.Entries() {
		data.Styles = append(data.Styles, StyleLink{
			Name: e.Name,
			URL:  build.GetPublicPath(s.cfg.ScratchPrefix, e.File),
		})
	}

	return data, nil
}

// Component returns the shell for modulePath as a component. The
// live-reload client is injected after the template is executed.
func (s *Shell) Component(modulePath string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		data, err := s.Data(modulePath)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := s.tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("execute shell template: %w", err)
		}

		page := buf.Bytes()
		if s.cfg.LivereloadScript != "" {
			if page, err = InjectScript(page, s.cfg.LivereloadScript); err != nil {
				return err
			}
		}

		_, err = w.Write(page)

		return err
	})
}

// manifest reads a dev manifest. A manifest not written yet is empty.
func (s *Shell) manifest(name string) (*build.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.cfg.ScratchDir, name))
	if os.IsNotExist(err) {
		return build.NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return build.ParseManifest(data)
}

func cleanModulePath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
}
