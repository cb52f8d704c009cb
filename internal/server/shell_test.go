package server

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/elm-factory/internal/build"
)

// writeManifests stores dev manifests in dir.
func writeManifests(t *testing.T, dir string, scripts, styles []build.ManifestEntry) {
	t.Helper()
	for name, entries := range map[string][]build.ManifestEntry{
		build.ScriptManifestName: scripts,
		build.StyleManifestName:  styles,
	} {
		if entries == nil {
			continue
		}
		data, err := build.BuildManifest(entries).MarshalJSON()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
}

func newTestShell(t *testing.T, scratch string, livereload string) *Shell {
	t.Helper()
	tmpl, err := LoadShellTemplate("")
	require.NoError(t, err)
	return NewShell(tmpl, ShellConfig{
		Main:             "./src/Main.elm",
		ScratchDir:       scratch,
		ScratchPrefix:    "/_factory/",
		ScriptPrefix:     "/_compile/",
		LivereloadScript: livereload,
	})
}

func TestShellData(t *testing.T) {
	scratch := t.TempDir()
	writeManifests(t, scratch,
		[]build.ManifestEntry{{Name: "Main.js", File: "0a1b2c3d.js"}},
		[]build.ManifestEntry{
			{Name: "main.css", File: "11111111.css"},
			{Name: "print.css", File: "22222222.css"},
		})
	shell := newTestShell(t, scratch, "")

	data, err := shell.Data("/src/Main.elm")
	require.NoError(t, err)
	assert.Equal(t, "src/Main.elm", data.Module)
	assert.Equal(t, "Main", data.ModuleName)
	assert.Equal(t, "/_factory/0a1b2c3d.js", data.Script)
	assert.Equal(t, "/_compile/src/Main.elm", data.CompileURL)
	assert.Equal(t, []StyleLink{
		{Name: "main.css", URL: "/_factory/11111111.css"},
		{Name: "print.css", URL: "/_factory/22222222.css"},
	}, data.Styles)

	other, err := shell.Data("/src/Page/Home.elm")
	require.NoError(t, err)
	assert.Equal(t, "Home", other.ModuleName)
	assert.Equal(t, "/_compile/src/Page/Home.elm", other.Script)
	assert.Len(t, other.Styles, 2)
}

func TestShellDataNestedModuleName(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, "src", "Page"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "elm.json"),
		[]byte(`{"type": "application", "source-directories": ["src"]}`), 0o644))
	chdir(t, project)

	shell := newTestShell(t, t.TempDir(), "")

	data, err := shell.Data("/src/Page/Home.elm")
	require.NoError(t, err)
	assert.Equal(t, "Home", data.Title)
	assert.Equal(t, "Page.Home", data.ModuleName)

	var buf bytes.Buffer
	require.NoError(t, shell.Component("/src/Page/Home.elm").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"Page.Home".split(".")`)
}

func TestShellDataWithoutManifests(t *testing.T) {
	shell := newTestShell(t, t.TempDir(), "")

	data, err := shell.Data("/src/Main.elm")
	require.NoError(t, err)
	assert.Equal(t, "/_compile/src/Main.elm", data.Script)
	assert.Empty(t, data.Styles)
}

func TestShellDataCorruptManifest(t *testing.T) {
	scratch := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scratch, build.StyleManifestName), []byte("{"), 0o644))
	shell := newTestShell(t, scratch, "")

	_, err := shell.Data("/src/Main.elm")
	assert.Error(t, err)
}

func TestShellComponent(t *testing.T) {
	scratch := t.TempDir()
	writeManifests(t, scratch,
		[]build.ManifestEntry{{Name: "Main.js", File: "0a1b2c3d.js"}},
		[]build.ManifestEntry{{Name: "main.css", File: "11111111.css"}})
	shell := newTestShell(t, scratch, "http://127.0.0.1:35729/livereload.js")

	var buf bytes.Buffer
	require.NoError(t, shell.Component("/src/Main.elm").Render(context.Background(), &buf))
	page := buf.String()

	assert.Contains(t, page, `<title>Main</title>`)
	assert.Contains(t, page, `<link rel="stylesheet" data-factory-style="main.css" href="/_factory/11111111.css"/>`)
	assert.Contains(t, page, `<script src="/_factory/0a1b2c3d.js"></script>`)
	assert.Contains(t, page, `<script src="http://127.0.0.1:35729/livereload.js"></script></body>`)
	assert.Contains(t, page, `"Main".split(".")`)
}

func TestLoadShellTemplate(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(custom, []byte(`<html><body><script src="{{.Script}}"></script></body></html>`), 0o644))

	tmpl, err := LoadShellTemplate(custom)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, ShellData{Script: "/_compile/src/Main.elm"}))
	assert.Equal(t, `<html><body><script src="/_compile/src/Main.elm"></script></body></html>`, buf.String())

	_, err = LoadShellTemplate(filepath.Join(dir, "missing.html"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.html")
	require.NoError(t, os.WriteFile(broken, []byte(`{{.Script`), 0o644))
	_, err = LoadShellTemplate(broken)
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// standing in for testing.T.Chdir, which needs Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
