package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/elm-factory/internal/logging"
)

// State is the lifecycle state of an EntryWatcher.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateRebuilding
	StateStopped
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRebuilding:
		return "rebuilding"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Kind selects which notification a successful rebuild emits.
type Kind int

const (
	// KindScript rebuilds end in a full page reload.
	KindScript Kind = iota
	// KindStyle rebuilds end in a stylesheet-only push.
	KindStyle
)

// FileSet is an immutable snapshot of the files one watcher generation
// monitors. The zero value is an empty set.
type FileSet struct {
	paths      []string
	index      map[string]struct{}
	generation uint64
}

// NewFileSet builds a set from paths, made absolute and deduplicated.
func NewFileSet(generation uint64, paths []string) FileSet {
	index := make(map[string]struct{}, len(paths))
	sorted := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, ok := index[p]; ok {
			continue
		}
		index[p] = struct{}{}
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	return FileSet{paths: sorted, index: index, generation: generation}
}

// Contains reports whether path is in the set.
func (s FileSet) Contains(path string) bool {
	_, ok := s.index[filepath.Clean(path)]
	return ok
}

// Paths returns a sorted copy of the members.
func (s FileSet) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)

	return out
}

// Len returns the number of members.
func (s FileSet) Len() int { return len(s.paths) }

// Generation returns the generation that published the set.
func (s FileSet) Generation() uint64 { return s.generation }

// Authority publishes the set of files another watcher owns. Changes to
// those files are left to that watcher.
type Authority interface {
	Snapshot() FileSet
}

// Resolver computes the dependency set of an entry.
type Resolver interface {
	Resolve(ctx context.Context, entry string) ([]string, error)
}

// Notifier receives the outcome of rebuilds.
type Notifier interface {
	// Reload asks clients for a full page reload.
	Reload(path string)
	// ReloadStyles asks clients to swap stylesheets in place.
	ReloadStyles(path string)
	// Error reports a failed rebuild.
	Error(err error)
}

// RebuildFunc recompiles an entry and returns the path announced to
// clients.
type RebuildFunc func(ctx context.Context) (string, error)

// Config configures an EntryWatcher.
type Config struct {
	// Name labels the watcher in logs and status.
	Name  string
	Entry string
	Kind  Kind

	Rebuild  RebuildFunc
	Resolver Resolver
	Notifier Notifier
	// Authority is optional.
	Authority Authority

	Debounce           time.Duration
	StabilityThreshold time.Duration
	PollInterval       time.Duration
	Logger             logging.Logger
}

// Status is a point-in-time view of an EntryWatcher.
type Status struct {
	Name        string    `json:"name"`
	Entry       string    `json:"entry"`
	State       string    `json:"state"`
	Generation  uint64    `json:"generation"`
	Files       int       `json:"files"`
	LastError   string    `json:"last_error,omitempty"`
	LastRebuild time.Time `json:"last_rebuild,omitempty"`
}

// EntryWatcher keeps one entry's artifact up to date. It watches the entry
// and its dependencies, rebuilds on relevant changes and replaces its watch
// handle whenever the dependency set is recomputed. A single loop goroutine
// owns rebuilds, so generations are strictly sequential.
type EntryWatcher struct {
	cfg    Config
	entry  string
	logger logging.Logger

	// rearm serializes TeardownAndRearm.
	rearm sync.Mutex

	mutex       sync.RWMutex
	state       State
	handle      *FileWatcher
	snapshot    FileSet
	generation  uint64
	lastErr     error
	lastRebuild time.Time

	queueMutex sync.Mutex
	queue      []ChangeEvent
	signal     chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEntryWatcher creates an idle watcher for cfg.Entry.
func NewEntryWatcher(cfg Config) (*EntryWatcher, error) {
	if cfg.Entry == "" {
		return nil, fmt.Errorf("entry watcher: entry is required")
	}
	if cfg.Rebuild == nil || cfg.Resolver == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("entry watcher %s: rebuild, resolver and notifier are required", cfg.Entry)
	}

	entry, err := filepath.Abs(cfg.Entry)
	if err != nil {
		return nil, fmt.Errorf("entry watcher: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(entry)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &EntryWatcher{
		cfg:    cfg,
		entry:  entry,
		logger: cfg.Logger.WithComponent("watcher").With("entry", cfg.Name),
		signal: make(chan struct{}, 1),
	}, nil
}

// Start resolves the entry, arms the first generation and starts the
// rebuild loop. A failed resolution arms on the entry alone.
func (w *EntryWatcher) Start(ctx context.Context) error {
	w.mutex.Lock()
	if w.state != StateIdle {
		w.mutex.Unlock()
		return fmt.Errorf("entry watcher %s: already started", w.cfg.Name)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mutex.Unlock()

	paths := []string{w.entry}
	deps, err := w.cfg.Resolver.Resolve(w.ctx, w.entry)
	if err != nil {
		w.logger.Error(w.ctx, err, "Dependency resolution failed, watching entry only")
		w.setLastError(err)
	} else {
		paths = append(paths, deps...)
	}

	if err := w.TeardownAndRearm(paths); err != nil {
		w.cancel()
		return err
	}

	w.setState(StateWatching)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(w.ctx)
	}()

	w.logger.Info(w.ctx, "Watching entry", "files", w.Snapshot().Len())

	return nil
}

// Stop ends the rebuild loop and the current watch handle. It waits for an
// in-flight rebuild to observe cancellation.
func (w *EntryWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mutex.RLock()
		cancel := w.cancel
		w.mutex.RUnlock()
		if cancel != nil {
			cancel()
		}
		w.wg.Wait()

		w.rearm.Lock()
		defer w.rearm.Unlock()

		w.mutex.Lock()
		handle := w.handle
		w.handle = nil
		w.state = StateStopped
		w.mutex.Unlock()

		if handle != nil {
			err = handle.Stop()
		}
	})

	return err
}

// TeardownAndRearm stops the current watch handle, then arms one watching
// paths and publishes the new snapshot. Events the old handle had not yet
// delivered are queued and evaluated against the new set. If the new handle
// cannot be armed, the previous set is armed again.
func (w *EntryWatcher) TeardownAndRearm(paths []string) error {
	w.rearm.Lock()
	defer w.rearm.Unlock()

	w.mutex.RLock()
	ctx := w.ctx
	stopped := w.state == StateStopped
	generation := w.generation + 1
	previous := w.snapshot
	old := w.handle
	w.mutex.RUnlock()

	if stopped || ctx == nil {
		return fmt.Errorf("entry watcher %s: not running", w.cfg.Name)
	}

	if old != nil {
		if err := old.Stop(); err != nil {
			w.logger.Warn(ctx, err, "Failed to stop previous watch handle")
		}
	}

	set := NewFileSet(generation, paths)
	handle, err := w.arm(ctx, set)
	if err != nil {
		w.logger.Error(ctx, err, "Failed to arm new file set")

		var restored *FileWatcher
		if old != nil {
			restored, _ = w.arm(ctx, previous)
		}
		w.mutex.Lock()
		w.handle = restored
		w.mutex.Unlock()

		return fmt.Errorf("entry watcher %s: %w", w.cfg.Name, err)
	}

	w.mutex.Lock()
	w.handle = handle
	w.snapshot = set
	w.generation = generation
	w.mutex.Unlock()

	w.logger.Debug(ctx, "Rearmed", "generation", generation, "files", set.Len())

	return nil
}

// arm starts a watch handle for set.
func (w *EntryWatcher) arm(ctx context.Context, set FileSet) (*FileWatcher, error) {
	handle, err := NewFileWatcher(Options{
		Debounce:           w.cfg.Debounce,
		StabilityThreshold: w.cfg.StabilityThreshold,
		PollInterval:       w.cfg.PollInterval,
		Logger:             w.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	handle.AddFilter(set.Contains)
	handle.AddHandler(w.enqueue)

	if err := handle.AddFiles(set.Paths()); err != nil {
		_ = handle.Stop()
		return nil, err
	}
	if err := handle.Start(ctx); err != nil {
		_ = handle.Stop()
		return nil, err
	}

	return handle, nil
}

// Snapshot returns the current file set.
func (w *EntryWatcher) Snapshot() FileSet {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.snapshot
}

// State returns the current lifecycle state.
func (w *EntryWatcher) State() State {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.state
}

// Status returns a point-in-time view for status reporting.
func (w *EntryWatcher) Status() Status {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	status := Status{
		Name:        w.cfg.Name,
		Entry:       w.entry,
		State:       w.state.String(),
		Generation:  w.generation,
		Files:       w.snapshot.Len(),
		LastRebuild: w.lastRebuild,
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}

	return status
}

// enqueue runs on the watch handle's dispatcher. It must not block: Stop on
// that handle is called from the rebuild loop.
func (w *EntryWatcher) enqueue(events []ChangeEvent) error {
	w.queueMutex.Lock()
	w.queue = append(w.queue, events...)
	w.queueMutex.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}

	return nil
}

func (w *EntryWatcher) drain() []ChangeEvent {
	w.queueMutex.Lock()
	defer w.queueMutex.Unlock()

	events := w.queue
	w.queue = nil

	return events
}

func (w *EntryWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
			changed := w.relevant(w.drain())
			if len(changed) == 0 {
				continue
			}
			w.rebuild(ctx, changed)
		}
	}
}

// relevant returns the changed paths this watcher owns: members of the
// current set that the authority does not claim.
func (w *EntryWatcher) relevant(events []ChangeEvent) []string {
	current := w.Snapshot()

	var claimed FileSet
	if w.cfg.Authority != nil {
		claimed = w.cfg.Authority.Snapshot()
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, e := range events {
		if !current.Contains(e.Path) || claimed.Contains(e.Path) {
			continue
		}
		if _, ok := seen[e.Path]; ok {
			continue
		}
		seen[e.Path] = struct{}{}
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)

	return paths
}

func (w *EntryWatcher) rebuild(ctx context.Context, changed []string) {
	w.setState(StateRebuilding)
	defer w.setState(StateWatching)

	w.logger.Info(ctx, "Change detected, rebuilding", "changed", changed)
	op := logging.StartOperation(w.logger, "rebuild")

	// Saves that land while the handle is being replaced are caught by
	// comparing file states from before the rebuild.
	before := statSet(w.Snapshot())

	path, err := w.cfg.Rebuild(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		op.EndWithError(ctx, err)
		w.setLastError(err)
		w.cfg.Notifier.Error(err)
		return
	}
	op.End(ctx, "path", path)

	w.mutex.Lock()
	w.lastErr = nil
	w.lastRebuild = time.Now()
	w.mutex.Unlock()

	deps, err := w.cfg.Resolver.Resolve(ctx, w.entry)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error(ctx, err, "Dependency resolution failed, keeping previous file set")
		w.setLastError(err)
	} else if err := w.TeardownAndRearm(append([]string{w.entry}, deps...)); err != nil {
		w.logger.Error(ctx, err, "Failed to rearm, keeping previous file set")
		w.setLastError(err)
	} else {
		w.requeueChanged(before)
	}

	if w.cfg.Kind == KindStyle {
		w.cfg.Notifier.ReloadStyles(path)
	} else {
		w.cfg.Notifier.Reload(path)
	}
}

func statSet(set FileSet) map[string]fileState {
	states := make(map[string]fileState, set.Len())
	for _, p := range set.Paths() {
		states[p] = statFile(p)
	}

	return states
}

// requeueChanged queues every path whose state differs from before.
func (w *EntryWatcher) requeueChanged(before map[string]fileState) {
	var events []ChangeEvent
	for p, prev := range before {
		cur := statFile(p)
		if cur == prev {
			continue
		}
		event := ChangeEvent{Type: EventTypeModified, Path: p, ModTime: cur.modTime, Size: cur.size}
		if !cur.exists {
			event.Type = EventTypeDeleted
		}
		events = append(events, event)
	}
	if len(events) > 0 {
		_ = w.enqueue(dedupe(events))
	}
}

func (w *EntryWatcher) setState(state State) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.state == StateStopped {
		return
	}
	w.state = state
}

func (w *EntryWatcher) setLastError(err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.lastErr = err
}
