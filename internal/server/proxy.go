// Package server implements the dev proxy: it serves the hashed dev assets,
// forwards compile and API requests to the reactor, renders the HTML shell
// for source-file requests and passes everything else through.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/logging"
	"github.com/conneroisu/elm-factory/internal/middleware"
	"github.com/conneroisu/elm-factory/internal/watcher"
)

// LivereloadHeader carries the client script URL on compiled responses.
const LivereloadHeader = "X-Livereload"

// StatusPath is served under the scratch prefix.
const StatusPath = "status"

// Status is the dev session state reported on the status route.
type Status struct {
	Status      string                `json:"status"`
	Watchers    []watcher.Status      `json:"watchers"`
	Builds      build.MetricsSnapshot `json:"builds"`
	SuccessRate float64               `json:"success_rate"`
	Clients     int                   `json:"livereload_clients"`
	Timestamp   int64                 `json:"timestamp"`
}

// StatusProvider reports the dev session state.
type StatusProvider interface {
	Status() Status
}

// Options configures a DevProxy.
type Options struct {
	Host string
	Port int
	// Backend is the reactor's base URL.
	Backend *url.URL

	ScriptPrefix  string
	APIPrefix     string
	PageSuffixes  []string
	ScratchPrefix string
	ScratchDir    string

	// LivereloadScript is the client script URL.
	LivereloadScript string
	Shell            *Shell
	Status           StatusProvider
	Logger           logging.Logger
}

// DevProxy routes dev requests.
type DevProxy struct {
	opts    Options
	logger  logging.Logger
	backend *httputil.ReverseProxy
	compile *httputil.ReverseProxy
	static  http.Handler

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
}

// NewDevProxy creates a dev proxy.
func NewDevProxy(opts Options) (*DevProxy, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("dev proxy: backend url is required")
	}
	if opts.Shell == nil {
		return nil, fmt.Errorf("dev proxy: shell is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	p := &DevProxy{
		opts:   opts,
		logger: opts.Logger.WithComponent("server"),
		static: http.StripPrefix(strings.TrimSuffix(opts.ScratchPrefix, "/"), http.FileServer(http.Dir(opts.ScratchDir))),
	}
	p.backend = p.newReverseProxy(nil)
	p.compile = p.newReverseProxy(p.injectResponse)

	return p, nil
}

func (p *DevProxy) newReverseProxy(modify func(*http.Response) error) *httputil.ReverseProxy {
	target := p.opts.Backend
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			if modify != nil {
				// Injection needs an uncompressed body.
				r.Out.Header.Del("Accept-Encoding")
			}
		},
		ModifyResponse: modify,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Error(r.Context(), err, "Backend request failed", "path", r.URL.Path)
			http.Error(w, "Bad Gateway: "+err.Error(), http.StatusBadGateway)
		},
	}
}

// ServeHTTP routes a request. Routes are evaluated in order: scratch
// assets, compiled scripts, API, source pages, passthrough.
func (p *DevProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	switch {
	case p.opts.ScratchPrefix != "" && strings.HasPrefix(urlPath, p.opts.ScratchPrefix):
		p.serveScratch(w, r)
	case strings.HasPrefix(urlPath, p.opts.ScriptPrefix):
		if p.opts.LivereloadScript != "" {
			w.Header().Set(LivereloadHeader, p.opts.LivereloadScript)
		}
		p.compile.ServeHTTP(w, r)
	case strings.HasPrefix(urlPath, p.opts.APIPrefix):
		p.backend.ServeHTTP(w, r)
	case p.isPage(urlPath):
		p.serveShell(w, r)
	default:
		p.backend.ServeHTTP(w, r)
	}
}

func (p *DevProxy) isPage(urlPath string) bool {
	for _, suffix := range p.opts.PageSuffixes {
		if strings.HasSuffix(urlPath, suffix) {
			return true
		}
	}

	return false
}

func (p *DevProxy) serveScratch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, p.opts.ScratchPrefix)
	if name == StatusPath {
		p.handleStatus(w, r)
		return
	}

	if name == build.ScriptManifestName || name == build.StyleManifestName {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	p.static.ServeHTTP(w, r)
}

func (p *DevProxy) serveShell(w http.ResponseWriter, r *http.Request) {
	component := p.opts.Shell.Component(r.URL.Path)
	templ.Handler(component, templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.logger.Error(r.Context(), err, "Failed to render shell", "path", r.URL.Path)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		})
	})).ServeHTTP(w, r)
}

// injectResponse adds the live-reload client to HTML responses.
func (p *DevProxy) injectResponse(resp *http.Response) error {
	if p.opts.LivereloadScript == "" {
		return nil
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}
	_ = resp.Body.Close()

	injected, err := InjectScript(body, p.opts.LivereloadScript)
	if err != nil {
		p.logger.Warn(resp.Request.Context(), err, "Live-reload injection failed", "path", resp.Request.URL.Path)
		injected = body
	}

	resp.Body = io.NopCloser(bytes.NewReader(injected))
	resp.ContentLength = int64(len(injected))
	resp.Header.Set("Content-Length", strconv.Itoa(len(injected)))

	return nil
}

func (p *DevProxy) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := Status{Status: "healthy", Watchers: []watcher.Status{}}
	if p.opts.Status != nil {
		status = p.opts.Status.Status()
	}
	status.Timestamp = time.Now().Unix()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		p.logger.Warn(r.Context(), err, "Failed to encode status response")
	}
}

// Addr returns the address the proxy listens on.
func (p *DevProxy) Addr() string {
	p.serverMutex.RLock()
	defer p.serverMutex.RUnlock()

	if p.listener != nil {
		return p.listener.Addr().String()
	}

	return net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
}

// Listen binds the configured address. Connections are accepted only once
// Serve is called.
func (p *DevProxy) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port)))
	if err != nil {
		return fmt.Errorf("dev server listen: %w", err)
	}

	p.serverMutex.Lock()
	p.listener = listener
	p.httpServer = &http.Server{
		Handler:           middleware.NewChain(middleware.Recovery(p.logger), middleware.Logging(p.logger)).Apply(p),
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.serverMutex.Unlock()

	return nil
}

// Serve accepts connections until Shutdown.
func (p *DevProxy) Serve() error {
	p.serverMutex.RLock()
	server, listener := p.httpServer, p.listener
	p.serverMutex.RUnlock()

	if server == nil {
		return fmt.Errorf("dev server: Listen not called")
	}

	p.logger.Info(context.Background(), "Dev server listening", "url", "http://"+listener.Addr().String())

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the server.
func (p *DevProxy) Shutdown(ctx context.Context) error {
	p.serverMutex.RLock()
	server, listener := p.httpServer, p.listener
	p.serverMutex.RUnlock()

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	// Shutdown does not close a listener that never reached Serve.
	_ = listener.Close()

	return err
}

// PageURL returns the proxy URL of a source file.
func (p *DevProxy) PageURL(source string) string {
	return "http://" + p.Addr() + path.Clean("/"+filepath.ToSlash(source))
}
