package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/watcher"
)

const testLivereload = "http://127.0.0.1:35729/livereload.js"

type statusFunc func() Status

func (f statusFunc) Status() Status { return f() }

// newTestBackend stands in for the reactor.
func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend-Path", r.URL.Path)
		switch {
		case r.URL.Path == "/_compile/src/Page.elm":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, `<html><body><div id="page"></div></body></html>`)
		case r.URL.Path == "/_compile/src/Main.js":
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = io.WriteString(w, `var Elm = {};`)
		default:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "backend:"+r.URL.Path)
		}
	}))
	t.Cleanup(backend.Close)
	return backend
}

func newTestProxy(t *testing.T, status StatusProvider) *httptest.Server {
	t.Helper()
	backend := newTestBackend(t)
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)

	scratch := t.TempDir()
	writeManifests(t, scratch,
		[]build.ManifestEntry{{Name: "Main.js", File: "0a1b2c3d.js"}},
		[]build.ManifestEntry{{Name: "main.css", File: "11111111.css"}})
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "0a1b2c3d.js"), []byte("var main;"), 0o644))

	proxy, err := NewDevProxy(Options{
		Backend:          target,
		ScriptPrefix:     "/_compile/",
		APIPrefix:        "/api/",
		PageSuffixes:     []string{".elm"},
		ScratchPrefix:    "/_factory/",
		ScratchDir:       scratch,
		LivereloadScript: testLivereload,
		Shell:            newTestShell(t, scratch, testLivereload),
		Status:           status,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(proxy)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewDevProxyValidation(t *testing.T) {
	_, err := NewDevProxy(Options{})
	assert.Error(t, err)

	_, err = NewDevProxy(Options{Backend: &url.URL{Scheme: "http", Host: "127.0.0.1:8001"}})
	assert.Error(t, err)
}

func TestRouting(t *testing.T) {
	ts := newTestProxy(t, nil)

	testCases := []struct {
		name        string
		path        string
		backendPath string
		livereload  bool
		contains    string
	}{
		{name: "compiled html", path: "/_compile/src/Page.elm", backendPath: "/_compile/src/Page.elm", livereload: true, contains: testLivereload},
		{name: "compiled script", path: "/_compile/src/Main.js", backendPath: "/_compile/src/Main.js", livereload: true, contains: "var Elm = {};"},
		{name: "api before page suffix", path: "/api/Data.elm", backendPath: "/api/Data.elm", contains: "backend:/api/Data.elm"},
		{name: "page suffix", path: "/src/Main.elm", contains: `<script src="/_factory/0a1b2c3d.js"></script>`},
		{name: "passthrough", path: "/images/logo.png", backendPath: "/images/logo.png", contains: "backend:/images/logo.png"},
		{name: "passthrough root", path: "/", backendPath: "/", contains: "backend:/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, ts.URL+tc.path)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.backendPath, resp.Header.Get("X-Backend-Path"))
			if tc.livereload {
				assert.Equal(t, testLivereload, resp.Header.Get(LivereloadHeader))
			} else {
				assert.Empty(t, resp.Header.Get(LivereloadHeader))
			}
			assert.Contains(t, body, tc.contains)
		})
	}
}

func TestCompiledScriptNotInjected(t *testing.T) {
	ts := newTestProxy(t, nil)

	resp, body := get(t, ts.URL+"/_compile/src/Main.js")
	assert.Equal(t, "var Elm = {};", body)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
}

func TestPageShellInjected(t *testing.T) {
	ts := newTestProxy(t, nil)

	resp, body := get(t, ts.URL+"/src/Main.elm")
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `<script src="`+testLivereload+`"></script></body>`)
	assert.Contains(t, body, `href="/_factory/11111111.css"`)
}

func TestScratchAssets(t *testing.T) {
	ts := newTestProxy(t, nil)

	resp, body := get(t, ts.URL+"/_factory/0a1b2c3d.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "var main;", body)
	assert.Equal(t, "public, max-age=31536000, immutable", resp.Header.Get("Cache-Control"))
	assert.Empty(t, resp.Header.Get("X-Backend-Path"))

	resp, body = get(t, ts.URL+"/_factory/"+build.StyleManifestName)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.JSONEq(t, `{"main.css": "11111111.css"}`, body)

	resp, _ = get(t, ts.URL+"/_factory/ffffffff.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusRoute(t *testing.T) {
	ts := newTestProxy(t, statusFunc(func() Status {
		return Status{
			Status: "error",
			Watchers: []watcher.Status{
				{Name: "main", State: "watching", Generation: 3, Files: 4, LastError: "type mismatch"},
			},
			Builds:  build.MetricsSnapshot{TotalBuilds: 4, FailedBuilds: 1, SuccessfulBuilds: 3},
			Clients: 2,
		}
	}))

	resp, body := get(t, ts.URL+"/_factory/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "error", status.Status)
	require.Len(t, status.Watchers, 1)
	assert.Equal(t, uint64(3), status.Watchers[0].Generation)
	assert.Equal(t, "type mismatch", status.Watchers[0].LastError)
	assert.Equal(t, int64(4), status.Builds.TotalBuilds)
	assert.Equal(t, 2, status.Clients)
	assert.NotZero(t, status.Timestamp)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/_factory/status", nil)
	require.NoError(t, err)
	postResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	postResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

func TestStatusRouteWithoutProvider(t *testing.T) {
	ts := newTestProxy(t, nil)

	_, body := get(t, ts.URL+"/_factory/status")
	assert.JSONEq(t, `"healthy"`, mustField(t, body, "status"))
}

func mustField(t *testing.T, body, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return string(m[field])
}

func TestBackendUnavailable(t *testing.T) {
	shell := newTestShell(t, t.TempDir(), "")
	proxy, err := NewDevProxy(Options{
		Backend:      &url.URL{Scheme: "http", Host: "127.0.0.1:1"},
		ScriptPrefix: "/_compile/",
		APIPrefix:    "/api/",
		Shell:        shell,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListenServeShutdown(t *testing.T) {
	shell := newTestShell(t, t.TempDir(), "")
	proxy, err := NewDevProxy(Options{
		Host:         "127.0.0.1",
		Port:         0,
		Backend:      &url.URL{Scheme: "http", Host: "127.0.0.1:1"},
		ScriptPrefix: "/_compile/",
		APIPrefix:    "/api/",
		PageSuffixes: []string{".elm"},
		Shell:        shell,
	})
	require.NoError(t, err)

	require.Error(t, proxy.Serve())
	require.NoError(t, proxy.Listen(context.Background()))

	done := make(chan error, 1)
	go func() { done <- proxy.Serve() }()

	resp, body := get(t, proxy.PageURL("src/Main.elm"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<script src="/_compile/src/Main.elm"></script>`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, proxy.Shutdown(ctx))
	assert.NoError(t, <-done)
}
