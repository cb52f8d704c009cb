package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/logging"
	"github.com/conneroisu/elm-factory/internal/server"
)

// fakeBackend stands in for the reactor.
type fakeBackend struct {
	server *httptest.Server
	done   chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "reactor:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	return &fakeBackend{server: srv, done: make(chan struct{})}
}

func (b *fakeBackend) Start(ctx context.Context) error { return nil }
func (b *fakeBackend) Stop() error                     { return nil }
func (b *fakeBackend) Addr() string                    { return b.server.Listener.Addr().String() }
func (b *fakeBackend) Done() <-chan struct{}           { return b.done }

// devProject writes a project with independent main and stylesheet
// entries.
func devProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Main.elm"),
		[]byte("module Main exposing (main)\n\nmain = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Stylesheets.elm"),
		[]byte("port module Stylesheets exposing (main)\n\nmain = 2\n"), 0o644))
	return root
}

func devConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Dev.Port = 0
	cfg.Dev.LivereloadPort = 0
	cfg.Dev.ScratchDir = t.TempDir()
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Watch.StabilityThreshold = 30 * time.Millisecond
	cfg.Watch.PollInterval = 10 * time.Millisecond
	return cfg
}

type runningSession struct {
	*DevSession
	cancel context.CancelFunc
	done   chan error
}

// stop ends the session and returns Run's error.
func (r *runningSession) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("dev session did not stop")
		return nil
	}
}

func startSession(t *testing.T, cfg *config.Config, root string, compiler *fakeCompiler, backend Backend) *runningSession {
	t.Helper()
	session, err := NewDevSession(cfg, DevOptions{Root: root, Compiler: compiler, Backend: backend})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &runningSession{DevSession: session, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- session.Run(ctx) }()

	select {
	case <-session.Ready():
	case err := <-r.done:
		cancel()
		t.Fatalf("dev session ended before ready: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("dev session not ready")
	}

	// Tests that consume done put a value back for this cleanup.
	t.Cleanup(func() {
		r.cancel()
		<-r.done
	})

	return r
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func baseURL(session *runningSession) string {
	return strings.TrimSuffix(session.URL(), "/src/Main.elm")
}

func TestDevSession_ServesInitialBuild(t *testing.T) {
	compiler := &fakeCompiler{script: "var main = 1;", styles: map[string]string{"main.css": "body{}"}}
	session := startSession(t, devConfig(t), devProject(t), compiler, newFakeBackend(t))

	scriptURL := "/_factory/" + build.DeriveFilename([]byte("var main = 1;"), ".js")
	styleURL := "/_factory/" + build.DeriveFilename([]byte("body{}"), ".css")

	code, page := httpGet(t, session.URL())
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, `<script src="`+scriptURL+`"></script>`)
	assert.Contains(t, page, `href="`+styleURL+`"`)
	assert.Contains(t, page, "/livereload.js")

	code, body := httpGet(t, baseURL(session)+scriptURL)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "var main = 1;", body)

	_, body = httpGet(t, baseURL(session)+"/favicon.ico")
	assert.Equal(t, "reactor:/favicon.ico", body)

	_, body = httpGet(t, baseURL(session)+"/_factory/status")
	var status server.Status
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "healthy", status.Status)
	require.Len(t, status.Watchers, 2)
	assert.Equal(t, "styles", status.Watchers[0].Name)
	assert.Equal(t, "main", status.Watchers[1].Name)
	assert.Equal(t, int64(2), status.Builds.SuccessfulBuilds)
}

func TestDevSession_StaleOnFailure(t *testing.T) {
	compiler := &fakeCompiler{script: "var v1;", styles: map[string]string{"main.css": "body{}"}}
	cfg := devConfig(t)
	session := startSession(t, cfg, devProject(t), compiler, newFakeBackend(t))
	ctx := context.Background()

	oldURL := baseURL(session) + "/_factory/" + build.DeriveFilename([]byte("var v1;"), ".js")
	manifest, err := os.ReadFile(filepath.Join(cfg.Dev.ScratchDir, build.ScriptManifestName))
	require.NoError(t, err)

	compiler.set("", errors.NewCompileError(errors.ErrCodeCompileFailed, "main compile failed", "TYPE MISMATCH", nil))
	_, err = session.rebuildMain(ctx)
	require.Error(t, err)

	code, body := httpGet(t, oldURL)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "var v1;", body)
	after, err := os.ReadFile(filepath.Join(cfg.Dev.ScratchDir, build.ScriptManifestName))
	require.NoError(t, err)
	assert.Equal(t, manifest, after)

	compiler.set("var v2;", nil)
	newPath, err := session.rebuildMain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/_factory/"+build.DeriveFilename([]byte("var v2;"), ".js"), newPath)

	code, body = httpGet(t, baseURL(session)+newPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "var v2;", body)

	code, _ = httpGet(t, oldURL)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = httpGet(t, baseURL(session)+"/_factory/"+build.DeriveFilename([]byte("body{}"), ".css"))
	assert.Equal(t, http.StatusOK, code, "other class files survive pruning")
}

func TestDevSession_RebuildsOnChange(t *testing.T) {
	root := devProject(t)
	compiler := &fakeCompiler{script: "var v1;", styles: map[string]string{"main.css": "body{}"}}
	cfg := devConfig(t)
	startSession(t, cfg, root, compiler, newFakeBackend(t))

	compiler.set("var v2;", nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Main.elm"),
		[]byte("module Main exposing (main)\n\nmain = 2\n"), 0o644))

	want := build.DeriveFilename([]byte("var v2;"), ".js")
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(cfg.Dev.ScratchDir, build.ScriptManifestName))
		return err == nil && strings.Contains(string(data), want)
	}, 5*time.Second, 20*time.Millisecond)

	mainCalls, styleCalls := compiler.calls()
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Stylesheets.elm"),
		[]byte("port module Stylesheets exposing (main)\n\nmain = 3\n"), 0o644))

	assert.Eventually(t, func() bool {
		_, styles := compiler.calls()
		return styles > styleCalls
	}, 5*time.Second, 20*time.Millisecond)

	after, _ := compiler.calls()
	assert.Equal(t, mainCalls, after, "style change must not rebuild the main entry")
}

func TestDevSession_BackendExit(t *testing.T) {
	backend := newFakeBackend(t)
	session := startSession(t, devConfig(t), devProject(t), &fakeCompiler{script: "x"}, backend)

	close(backend.done)

	select {
	case err := <-session.done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reactor exited")
		session.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("session kept running after the backend exited")
	}
}

func TestDevSession_TemporaryScratchRemoved(t *testing.T) {
	cfg := devConfig(t)
	cfg.Dev.ScratchDir = ""
	session := startSession(t, cfg, devProject(t), &fakeCompiler{script: "x"}, newFakeBackend(t))

	scratch := session.scratch
	assert.DirExists(t, scratch)
	assert.FileExists(t, filepath.Join(scratch, build.ScriptManifestName))

	require.NoError(t, session.stop(t))
	session.done <- nil
	assert.NoDirExists(t, scratch)
}

func TestDevSession_InitialFailureKeepsSession(t *testing.T) {
	compiler := &fakeCompiler{mainErr: fmt.Errorf("syntax problem")}
	session := startSession(t, devConfig(t), devProject(t), compiler, newFakeBackend(t))

	code, page := httpGet(t, session.URL())
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, `<script src="/_compile/src/Main.elm"></script>`)

	status := session.Status()
	assert.Equal(t, int64(1), status.Builds.FailedBuilds)
}

func TestDevSession_PruneWaitsForInflightBuilds(t *testing.T) {
	scratch := t.TempDir()
	for _, name := range []string{"a.css", "b.css", "shared.png", "main.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(scratch, name), []byte(name), 0o644))
	}

	s := &DevSession{
		scratch: scratch,
		logger:  logging.Discard(),
		results: make(map[build.Class]*build.Result),
	}
	ctx := context.Background()

	s.begin()
	s.commit(ctx, &build.Result{Class: build.ClassStyle, Files: []string{"a.css", "shared.png"}})

	// The script build has written shared.png but not committed yet.
	s.begin()
	s.begin()
	s.commit(ctx, &build.Result{Class: build.ClassStyle, Files: []string{"b.css"}})
	assert.FileExists(t, filepath.Join(scratch, "shared.png"))
	assert.FileExists(t, filepath.Join(scratch, "a.css"))

	s.commit(ctx, &build.Result{Class: build.ClassScript, Files: []string{"main.js", "shared.png"}})
	assert.NoFileExists(t, filepath.Join(scratch, "a.css"))
	assert.FileExists(t, filepath.Join(scratch, "shared.png"))
	assert.FileExists(t, filepath.Join(scratch, "b.css"))
	assert.FileExists(t, filepath.Join(scratch, "main.js"))

	// A failed build ends without replacing anything.
	s.begin()
	s.commit(ctx, nil)
	assert.FileExists(t, filepath.Join(scratch, "b.css"))
	assert.Zero(t, s.inflight)
}

func TestNewDevSession_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Main = " "

	_, err := NewDevSession(cfg, DevOptions{Compiler: &fakeCompiler{}, Backend: newFakeBackend(t)})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}
