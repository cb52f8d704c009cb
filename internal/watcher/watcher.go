// Package watcher turns filesystem notifications into debounced, stable
// change batches, and drives per-entry rebuilds from them.
//
// FileWatcher is the low-level piece: it watches the parent directories of
// a set of files (so editors that save by renaming keep being observed),
// groups rapid events, and waits until every changed file has stopped
// changing before handing the batch to its handlers. EntryWatcher builds on
// it with a rebuild state machine per compilation entry.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/elm-factory/internal/logging"
)

// FileWatcher watches for file changes with debouncing and write-stability
// detection.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	mutex     sync.RWMutex

	stability    time.Duration
	pollInterval time.Duration
	logger       logging.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	// unstable is the batch awaitStable was polling when ctx ended.
	unstable []ChangeEvent
}

// Options configures a FileWatcher.
type Options struct {
	// Debounce is the quiet period that closes a batch.
	Debounce time.Duration
	// StabilityThreshold is how long a changed file's size and mtime must
	// stay unchanged before the batch is delivered. Zero disables the check.
	StabilityThreshold time.Duration
	// PollInterval is how often stability is re-checked.
	PollInterval time.Duration
	Logger       logging.Logger
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	stopped bool
	mutex   sync.Mutex
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(opts Options) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	debouncer := &Debouncer{
		delay:   opts.Debounce,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	fw := &FileWatcher{
		watcher:      watcher,
		debouncer:    debouncer,
		filters:      make([]FileFilter, 0),
		handlers:     make([]ChangeHandler, 0),
		stability:    opts.StabilityThreshold,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger.WithComponent("watcher"),
	}

	return fw, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches path. A directory is watched directly; for a file its
// parent directory is watched, so the file keeps being observed when it is
// replaced by a rename.
func (fw *FileWatcher) AddPath(path string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	dir := absPath
	if !info.IsDir() {
		dir = filepath.Dir(absPath)
	}

	return fw.watcher.Add(dir)
}

// AddFiles watches the parent directory of every file in paths. Missing
// files are watched through their directory if it exists.
func (fw *FileWatcher) AddFiles(paths []string) error {
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	for _, d := range sorted {
		if err := fw.watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	return nil
}

// WatchList returns the directories currently watched.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)

	return list
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	if fw.started {
		fw.mutex.Unlock()
		return fmt.Errorf("file watcher already started")
	}
	fw.started = true
	ctx, fw.cancel = context.WithCancel(ctx)
	fw.mutex.Unlock()

	fw.wg.Add(3)
	go func() {
		defer fw.wg.Done()
		fw.debouncer.start(ctx)
	}()
	go func() {
		defer fw.wg.Done()
		fw.processEvents(ctx)
	}()
	go func() {
		defer fw.wg.Done()
		fw.watchLoop(ctx)
	}()

	return nil
}

// Stop stops the file watcher and waits for its goroutines. Events that
// were still being debounced or checked for stability are handed to the
// handlers as a final batch before Stop returns; once it returns no handler
// of this watcher runs again.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mutex.RLock()
		cancel := fw.cancel
		fw.mutex.RUnlock()
		if cancel != nil {
			cancel()
		}
		fw.wg.Wait()

		pending := fw.debouncer.stop()
		err = fw.watcher.Close()

		fw.mutex.Lock()
		pending = append(fw.unstable, pending...)
		fw.unstable = nil
		handlers := fw.handlers
		fw.mutex.Unlock()

		if len(pending) == 0 {
			return
		}
		batch := dedupe(pending)
		for _, handler := range handlers {
			if herr := handler(batch); herr != nil {
				fw.logger.Warn(context.Background(), herr, "File watcher handler error")
			}
		}
	})

	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	var size int64
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case fw.debouncer.events <- changeEvent:
	case <-ctx.Done():
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			if !fw.awaitStable(ctx, events) {
				fw.mutex.Lock()
				fw.unstable = append(fw.unstable, events...)
				fw.mutex.Unlock()
				return
			}

			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Warn(ctx, err, "File watcher handler error")
				}
			}
		}
	}
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}

	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// awaitStable polls the batch's files until none has changed size or mtime
// for the stability threshold. It returns false if ctx ends first.
func (fw *FileWatcher) awaitStable(ctx context.Context, events []ChangeEvent) bool {
	if fw.stability <= 0 {
		return ctx.Err() == nil
	}

	last := make(map[string]fileState, len(events))
	for _, e := range events {
		last[e.Path] = statFile(e.Path)
	}
	stableSince := time.Now()

	ticker := time.NewTicker(fw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			changed := false
			for path, prev := range last {
				cur := statFile(path)
				if cur != prev {
					last[path] = cur
					changed = true
				}
			}
			if changed {
				stableSince = now
				continue
			}
			if now.Sub(stableSince) >= fw.stability {
				return true
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := dedupe(d.pending)

	select {
	case d.output <- events:
		d.pending = d.pending[:0]
	default:
		// Consumer is busy; keep the events and try again.
		d.timer = time.AfterFunc(d.delay, d.flush)
	}
}

// stop disables the debouncer and returns every event it still holds:
// queued input, pending events and batches not yet consumed.
func (d *Debouncer) stop() []ChangeEvent {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}

	var held []ChangeEvent
	for {
		select {
		case batch := <-d.output:
			held = append(held, batch...)
		case event := <-d.events:
			d.pending = append(d.pending, event)
		default:
			held = append(held, d.pending...)
			d.pending = nil
			return held
		}
	}
}

// dedupe keeps the latest event per path, sorted by path.
func dedupe(events []ChangeEvent) []ChangeEvent {
	latest := make(map[string]ChangeEvent, len(events))
	for _, event := range events {
		latest[event.Path] = event
	}

	out := make([]ChangeEvent, 0, len(latest))
	for _, event := range latest {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out
}

// ElmFilter accepts Elm source files.
func ElmFilter(path string) bool {
	return filepath.Ext(path) == ".elm"
}
