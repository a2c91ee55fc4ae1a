// Package watcher observes the examples tree and emits classified,
// debounced change events.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrWatchUnavailable means the detector could not start (missing root,
// exhausted watch descriptors). The catalog keeps working as last loaded;
// only hot reload is lost.
var ErrWatchUnavailable = errors.New("filesystem watch unavailable")

// Op is the logical operation of a change event.
type Op uint8

const (
	OpCreated Op = iota
	OpModified
	OpRemoved
)

// String returns the lower-case name of the op.
func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpRemoved:
		return "removed"
	}
	return "unknown"
}

// Class is the role the changed file plays in its example. Unrecognized
// paths never produce events.
type Class uint8

const (
	ClassScript Class = iota
	ClassMetadata
	ClassSuite
	ClassDoc
)

// String returns the lower-case name of the class.
func (c Class) String() string {
	switch c {
	case ClassScript:
		return "script"
	case ClassMetadata:
		return "metadata"
	case ClassSuite:
		return "suite"
	case ClassDoc:
		return "doc"
	}
	return "unknown"
}

// Event is one coalesced change to a recognized file.
type Event struct {
	// Absolute path of the changed file
	Path string
	// Logical operation after coalescing
	Op Op
	// Role of the file within its example
	Class Class
	// Arrival time of the last raw event folded into this one
	Time time.Time
}

// Config carries the watcher's settings.
type Config struct {
	// Root directory to watch recursively
	Root string
	// Extension of script and suite files
	ScriptExt string
	// Name of the metadata file
	MetaFile string
	// Coalescing window; editors often emit several writes per save
	Debounce time.Duration
}

// Watcher wraps fsnotify, classifies raw events against the example
// layout, and coalesces bursts per path into single logical events.
type Watcher struct {
	logger zerolog.Logger
	cfg    Config
	fs     *fsnotify.Watcher

	events  chan Event
	flushes chan string
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	pending   map[string]*pendingEvent
	closeOnce sync.Once
}

type pendingEvent struct {
	op    Op
	class Class
	last  time.Time
	timer *time.Timer
}

// New starts watching the configured root recursively. Failure to start
// wraps ErrWatchUnavailable.
func New(logger zerolog.Logger, cfg Config) (*Watcher, error) {
	if _, err := os.Stat(cfg.Root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatchUnavailable, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatchUnavailable, err)
	}

	w := &Watcher{
		logger:  logger,
		cfg:     cfg,
		fs:      fsw,
		events:  make(chan Event, 64),
		flushes: make(chan string, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingEvent),
	}

	if err := w.watchTree(cfg.Root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("%w: %v", ErrWatchUnavailable, err)
	}

	w.wg.Add(1)
	go w.loop()

	logger.Info().Str("root", cfg.Root).Dur("debounce", cfg.Debounce).Msg("Watching examples directory")
	return w, nil
}

// Events returns the stream of coalesced change events. The channel closes
// after Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, p := range w.pending {
			p.timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return
		case path := <-w.flushes:
			w.emit(path)
		case raw, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleRaw(raw)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handleRaw(raw fsnotify.Event) {
	op, ok := mapOp(raw.Op)
	if !ok {
		return
	}

	// New directories need their own watch, and any files already inside
	// them were created before the watch existed, so synthesize events.
	if op == OpCreated {
		if info, err := os.Stat(raw.Name); err == nil && info.IsDir() {
			if err := w.watchTree(raw.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", raw.Name).Msg("Failed to watch new directory")
			}
			w.enqueueExisting(raw.Name)
			return
		}
	}

	class, ok := w.classify(raw.Name)
	if !ok {
		w.logger.Debug().Str("path", raw.Name).Msg("Ignoring unrecognized path")
		return
	}
	w.record(raw.Name, op, class, time.Now())
}

// enqueueExisting emits synthetic Created events for recognized files
// already present under a freshly watched directory.
func (w *Watcher) enqueueExisting(dir string) {
	now := time.Now()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if class, ok := w.classify(path); ok {
			w.record(path, OpCreated, class, now)
		}
		return nil
	})
}

// record merges the raw event into the pending entry for its path and
// (re)arms the debounce timer. Events for one path flush in arrival order;
// no ordering is promised across distinct paths beyond arrival.
func (w *Watcher) record(path string, op Op, class Class, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.op = mergeOps(p.op, op)
		p.last = at
		p.timer.Reset(w.cfg.Debounce)
		return
	}

	p := &pendingEvent{op: op, class: class, last: at}
	p.timer = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case w.flushes <- path:
		case <-w.done:
		}
	})
	w.pending[path] = p
}

func (w *Watcher) emit(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	ev := Event{Path: path, Op: p.op, Class: p.class, Time: p.last}
	w.logger.Debug().
		Str("path", ev.Path).
		Stringer("op", ev.Op).
		Stringer("class", ev.Class).
		Msg("Change detected")

	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// classify determines whether a path is a recognized example file. Only
// files inside an example directory count.
func (w *Watcher) classify(path string) (Class, bool) {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return 0, false
	}

	base := filepath.Base(path)
	switch {
	case base == w.cfg.MetaFile:
		return ClassMetadata, true
	case len(parts) >= 3 && parts[len(parts)-2] == "tests" && strings.HasSuffix(base, w.cfg.ScriptExt):
		return ClassSuite, true
	case len(parts) == 2 && strings.HasSuffix(base, w.cfg.ScriptExt):
		return ClassScript, true
	case strings.HasSuffix(base, ".md"):
		return ClassDoc, true
	}
	return 0, false
}

func mapOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreated, true
	case op.Has(fsnotify.Write):
		return OpModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemoved, true
	}
	return 0, false
}

// mergeOps folds a later raw op into an earlier pending one so a burst of
// editor writes collapses into a single logical event.
func mergeOps(earlier, later Op) Op {
	switch {
	case earlier == OpCreated && later == OpModified:
		return OpCreated
	case earlier == OpRemoved && later == OpCreated:
		// Removed then recreated within the window is a replacement.
		return OpModified
	default:
		return later
	}
}
