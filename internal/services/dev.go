package services

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/elm-factory/internal/build"
	"github.com/conneroisu/elm-factory/internal/config"
	"github.com/conneroisu/elm-factory/internal/errors"
	"github.com/conneroisu/elm-factory/internal/livereload"
	"github.com/conneroisu/elm-factory/internal/logging"
	"github.com/conneroisu/elm-factory/internal/reactor"
	"github.com/conneroisu/elm-factory/internal/resolver"
	"github.com/conneroisu/elm-factory/internal/server"
	"github.com/conneroisu/elm-factory/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Backend is the compiler-serving process the proxy forwards to.
type Backend interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() string
	// Done is closed when the backend exits.
	Done() <-chan struct{}
}

// DevOptions contains the collaborators of a DevSession. Zero values select
// the external toolchain.
type DevOptions struct {
	// Root is the project directory. Defaults to the working directory.
	Root     string
	Compiler build.Compiler
	Backend  Backend
	Resolver watcher.Resolver
	Logger   logging.Logger
}

// DevSession owns every component of a running dev server: the reactor,
// the live-reload server, one watcher per entry and the proxy.
type DevSession struct {
	config       *config.Config
	root         string
	logger       logging.Logger
	errorHandler *errors.ErrorHandler

	orchestrator *build.Orchestrator
	resolver     watcher.Resolver
	backend      Backend

	scratch     string
	ownsScratch bool

	livereload *livereload.Server
	styles     *watcher.EntryWatcher
	main       *watcher.EntryWatcher
	proxy      *server.DevProxy

	resultsMutex sync.Mutex
	results      map[build.Class]*build.Result
	// inflight counts builds that may be writing into scratch; stale holds
	// superseded files until none is.
	inflight int
	stale    []string

	ready chan struct{}
}

// NewDevSession creates a dev session for cfg. Nothing is started until
// Run.
func NewDevSession(cfg *config.Config, opts DevOptions) (*DevSession, error) {
	if err := cfg.ValidateForDev(); err != nil {
		return nil, err
	}

	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		opts.Root = wd
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Compiler == nil {
		opts.Compiler = build.NewExecCompiler(cfg.Compiler.MainCommand, cfg.Compiler.StylesCommand, opts.Root)
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New(opts.Logger)
	}
	if opts.Backend == nil {
		opts.Backend = reactor.New(reactor.Config{
			Command: cfg.Dev.ReactorCommand,
			Host:    cfg.Dev.ReactorHost,
			Port:    cfg.Dev.ReactorPort,
			Dir:     opts.Root,
			Timeout: cfg.Dev.ReactorTimeout,
			Logger:  opts.Logger,
		})
	}

	logger := opts.Logger.WithComponent("dev")

	return &DevSession{
		config:       cfg,
		root:         opts.Root,
		logger:       logger,
		errorHandler: errors.NewErrorHandler(logger),
		orchestrator: build.NewOrchestrator(opts.Compiler,
			build.WithRoot(opts.Root),
			build.WithAssetTag(cfg.Assets.Tag),
			build.WithLogger(opts.Logger),
		),
		resolver: opts.Resolver,
		backend:  opts.Backend,
		results:  make(map[build.Class]*build.Result),
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once the proxy accepts connections.
func (s *DevSession) Ready() <-chan struct{} {
	return s.ready
}

// URL returns the proxy URL of the main entry. Valid after Ready.
func (s *DevSession) URL() string {
	return s.proxy.PageURL(s.config.Main)
}

// Run starts the session and blocks until ctx is cancelled or the backend
// exits. Rebuild failures are reported and never end the session.
func (s *DevSession) Run(ctx context.Context) (err error) {
	if err := s.prepareScratch(); err != nil {
		return err
	}
	defer s.cleanup()

	if err := s.startLivereload(ctx); err != nil {
		return err
	}

	if err := s.backend.Start(ctx); err != nil {
		return err
	}

	if s.styles, err = s.newEntryWatcher("styles", s.config.Stylesheets, watcher.KindStyle, s.rebuildStyles, nil); err != nil {
		return err
	}
	if err := s.styles.Start(ctx); err != nil {
		return err
	}
	if _, err := s.rebuildStyles(ctx); err != nil {
		s.errorHandler.Handle(ctx, err)
	}

	if _, err := s.rebuildMain(ctx); err != nil {
		s.errorHandler.Handle(ctx, err)
	}
	if s.main, err = s.newEntryWatcher("main", s.config.Main, watcher.KindScript, s.rebuildMain, s.styles); err != nil {
		return err
	}
	if err := s.main.Start(ctx); err != nil {
		return err
	}

	if err := s.startProxy(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.proxy.Serve() }()

	close(s.ready)
	s.logger.Info(ctx, "Dev server ready", "url", s.URL(), "reactor", s.backend.Addr(), "livereload", s.livereload.Addr())

	select {
	case <-ctx.Done():
		return nil
	case <-s.backend.Done():
		return errors.NewIOError(errors.ErrCodeBackendUnavailable, "reactor exited unexpectedly", nil)
	case err := <-serveErr:
		return err
	}
}

func (s *DevSession) prepareScratch() error {
	if dir := s.config.Dev.ScratchDir; dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.root, dir)
		}
		if err := build.EnsureDir(dir); err != nil {
			return err
		}
		s.scratch = dir
		return nil
	}

	dir, err := os.MkdirTemp("", "elm-factory-dev-*")
	if err != nil {
		return errors.NewWriteError(errors.ErrCodeWriteFailed, "failed to create scratch directory", err)
	}
	s.scratch = dir
	s.ownsScratch = true

	return nil
}

func (s *DevSession) startLivereload(ctx context.Context) error {
	host := s.config.Dev.Host
	port := "*"
	if s.config.Dev.Port != 0 {
		port = strconv.Itoa(s.config.Dev.Port)
	}

	s.livereload = livereload.New(host, s.config.Dev.LivereloadPort,
		livereload.WithOriginPatterns(net.JoinHostPort(host, port), net.JoinHostPort("localhost", port)),
		livereload.WithLogger(s.logger),
	)

	return s.livereload.Start(ctx)
}

func (s *DevSession) startProxy(ctx context.Context) error {
	tmpl, err := server.LoadShellTemplate(s.templatePath())
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}

	dev := s.config.Dev
	shell := server.NewShell(tmpl, server.ShellConfig{
		Main:             s.config.Main,
		ScratchDir:       s.scratch,
		ScratchPrefix:    dev.ScratchPrefix,
		ScriptPrefix:     dev.ScriptPrefix,
		LivereloadScript: s.livereload.ScriptURL(),
	})

	s.proxy, err = server.NewDevProxy(server.Options{
		Host:             dev.Host,
		Port:             dev.Port,
		Backend:          &url.URL{Scheme: "http", Host: s.backend.Addr()},
		ScriptPrefix:     dev.ScriptPrefix,
		APIPrefix:        dev.APIPrefix,
		PageSuffixes:     dev.PageSuffixes,
		ScratchPrefix:    dev.ScratchPrefix,
		ScratchDir:       s.scratch,
		LivereloadScript: s.livereload.ScriptURL(),
		Shell:            shell,
		Status:           s,
		Logger:           s.logger,
	})
	if err != nil {
		return err
	}

	return s.proxy.Listen(ctx)
}

func (s *DevSession) templatePath() string {
	if s.config.Template == "" || filepath.IsAbs(s.config.Template) {
		return s.config.Template
	}

	return filepath.Join(s.root, s.config.Template)
}

func (s *DevSession) newEntryWatcher(name, entry string, kind watcher.Kind, rebuild watcher.RebuildFunc, authority watcher.Authority) (*watcher.EntryWatcher, error) {
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(s.root, entry)
	}

	return watcher.NewEntryWatcher(watcher.Config{
		Name:               name,
		Entry:              entry,
		Kind:               kind,
		Rebuild:            rebuild,
		Resolver:           s.resolver,
		Notifier:           s.livereload,
		Authority:          authority,
		Debounce:           s.config.Watch.Debounce,
		StabilityThreshold: s.config.Watch.StabilityThreshold,
		PollInterval:       s.config.Watch.PollInterval,
		Logger:             s.logger,
	})
}

// rebuildStyles writes the stylesheets into the scratch directory and
// returns the URL of the style manifest, which clients use to find the new
// hashed names.
func (s *DevSession) rebuildStyles(ctx context.Context) (string, error) {
	s.begin()
	result, err := s.orchestrator.BuildStyles(ctx, build.StyleOptions{
		Entry:      s.config.Stylesheets,
		OutputPath: s.scratch,
		PublicPath: s.config.Dev.ScratchPrefix,
	})
	if err != nil {
		s.commit(ctx, nil)
		return "", err
	}
	s.commit(ctx, result)

	return build.GetPublicPath(s.config.Dev.ScratchPrefix, build.StyleManifestName), nil
}

// rebuildMain writes the main script into the scratch directory and
// returns its URL.
func (s *DevSession) rebuildMain(ctx context.Context) (string, error) {
	s.begin()
	result, err := s.orchestrator.BuildMain(ctx, build.MainOptions{
		Entry:      s.config.Main,
		OutputPath: s.scratch,
		PublicPath: s.config.Dev.ScratchPrefix,
	})
	if err != nil {
		s.commit(ctx, nil)
		return "", err
	}
	s.commit(ctx, result)

	file, _ := result.Manifest.Get(build.LogicalScriptName(s.config.Main))

	return build.GetPublicPath(s.config.Dev.ScratchPrefix, file), nil
}

// begin marks a build as writing into scratch.
func (s *DevSession) begin() {
	s.resultsMutex.Lock()
	defer s.resultsMutex.Unlock()

	s.inflight++
}

// commit ends a build started with begin. A successful result replaces the
// previous one of its class, whose files become stale. Stale files that no
// current result references are removed once no build is writing, so a file
// another class is about to commit is never deleted.
func (s *DevSession) commit(ctx context.Context, result *build.Result) {
	s.resultsMutex.Lock()
	defer s.resultsMutex.Unlock()

	s.inflight--
	if result != nil {
		if previous := s.results[result.Class]; previous != nil {
			s.stale = append(s.stale, previous.Files...)
		}
		s.results[result.Class] = result
	}
	if s.inflight > 0 || len(s.stale) == 0 {
		return
	}

	keep := make(map[string]struct{})
	for _, r := range s.results {
		for _, f := range r.Files {
			keep[f] = struct{}{}
		}
	}

	var remove []string
	seen := make(map[string]struct{})
	for _, f := range s.stale {
		if _, ok := keep[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		remove = append(remove, f)
	}
	s.stale = nil
	if len(remove) == 0 {
		return
	}

	if err := build.RemoveFiles(s.scratch, remove); err != nil {
		s.logger.Warn(ctx, err, "Failed to remove stale dev files")
		return
	}
	s.logger.Debug(ctx, "Removed stale dev files", "files", len(remove))
}

// Status reports the session state for the status route.
func (s *DevSession) Status() server.Status {
	status := server.Status{
		Status:      "healthy",
		Builds:      s.orchestrator.Metrics().GetSnapshot(),
		SuccessRate: s.orchestrator.Metrics().GetSuccessRate(),
		Clients:     s.livereload.ClientCount(),
	}

	for _, w := range []*watcher.EntryWatcher{s.styles, s.main} {
		if w == nil {
			continue
		}
		ws := w.Status()
		if ws.LastError != "" {
			status.Status = "error"
		}
		status.Watchers = append(status.Watchers, ws)
	}

	return status
}

func (s *DevSession) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.proxy != nil {
		if err := s.proxy.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, err, "Dev server shutdown failed")
		}
	}
	for _, w := range []*watcher.EntryWatcher{s.main, s.styles} {
		if w != nil {
			_ = w.Stop()
		}
	}
	if err := s.backend.Stop(); err != nil {
		s.logger.Warn(ctx, err, "Reactor shutdown failed")
	}
	if s.livereload != nil {
		if err := s.livereload.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, err, "Live-reload shutdown failed")
		}
	}
	if s.ownsScratch {
		if err := os.RemoveAll(s.scratch); err != nil {
			s.logger.Warn(ctx, err, "Failed to remove scratch directory", "dir", s.scratch)
		}
	}

	s.logger.Info(ctx, "Dev session stopped")
}
