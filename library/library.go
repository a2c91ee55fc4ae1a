// Package library owns the live example catalog: it loads examples from
// disk, hot-reloads them as the change detector reports edits, snapshots
// prior content for revert, and runs test suites through the embedded
// engine. It is the single coordination point the UI layer talks to.
package library

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/multiplex55/koto-learning/catalog"
	"github.com/multiplex55/koto-learning/config"
	"github.com/multiplex55/koto-learning/engine"
	"github.com/multiplex55/koto-learning/model"
	"github.com/multiplex55/koto-learning/runner"
	"github.com/multiplex55/koto-learning/snapshot"
	"github.com/multiplex55/koto-learning/watcher"
)

// Library is the orchestration engine. One background goroutine owns the
// change pipeline (capture, then reconcile, then publish); suite runs
// happen on the caller's goroutine so a long-running script never blocks
// catalog updates. The published catalog is immutable and swapped
// wholesale, so readers need no locks once they hold a reference.
type Library struct {
	logger  zerolog.Logger
	cfg     config.Config
	builder *catalog.Builder
	store   *snapshot.Store
	runner  *runner.Runner
	eng     engine.Engine
	watch   *watcher.Watcher

	mu       sync.RWMutex
	state    *catalog.State
	version  uint64
	selected string
	degraded bool
	loadErr  error
	subs     map[int]chan model.ReloadDelta
	nextSub  int
	runLog   []model.RunReport

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the catalog and, when watch is true, starts hot reload. A
// root-level build failure does not prevent opening: the library starts
// with an empty catalog and reports the cause via LoadError. A watcher
// startup failure degrades to a static catalog (Degraded reports true)
// instead of failing.
func Open(logger zerolog.Logger, cfg config.Config, eng engine.Engine, watch bool) (*Library, error) {
	builder := catalog.New(logger, catalog.Config{
		Root:      cfg.ExamplesDir,
		ScriptExt: cfg.ScriptExt,
		MetaFile:  cfg.MetaFile,
	})

	l := &Library{
		logger:  logger,
		cfg:     cfg,
		builder: builder,
		store:   snapshot.NewStore(logger, cfg.SnapshotDepth),
		runner:  runner.New(logger, eng),
		eng:     eng,
		version: 1,
		subs:    make(map[int]chan model.ReloadDelta),
		done:    make(chan struct{}),
	}

	state, err := builder.Build(l.version)
	if err != nil {
		logger.Error().Err(err).Str("root", cfg.ExamplesDir).Msg("Catalog load failed; starting with empty catalog")
		state = &catalog.State{Catalog: model.EmptyCatalog(l.version), Files: map[string][]byte{}}
		l.loadErr = err
	}
	l.state = state

	if watch {
		w, werr := watcher.New(logger, watcher.Config{
			Root:      cfg.ExamplesDir,
			ScriptExt: cfg.ScriptExt,
			MetaFile:  cfg.MetaFile,
			Debounce:  cfg.Debounce,
		})
		if werr != nil {
			logger.Warn().Err(werr).Msg("Hot reload disabled; catalog stays as loaded")
			l.degraded = true
		} else {
			l.watch = w
			l.wg.Add(1)
			go l.loop()
		}
	}

	return l, nil
}

// Close stops the change pipeline and all reload feeds.
func (l *Library) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		if l.watch != nil {
			_ = l.watch.Close()
		}
		l.wg.Wait()

		l.mu.Lock()
		for id, ch := range l.subs {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	})
}

// Catalog returns the current published catalog snapshot.
func (l *Library) Catalog() *model.Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Catalog
}

// Warnings returns the per-example diagnostics of the latest load.
func (l *Library) Warnings() []catalog.MalformedExampleError {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]catalog.MalformedExampleError(nil), l.state.Warnings...)
}

// Degraded reports whether hot reload is unavailable.
func (l *Library) Degraded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.degraded
}

// LoadError returns the root-level failure of the initial load, if any.
func (l *Library) LoadError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadErr
}

// Select marks an example as the UI's current selection. Returns false if
// the example does not exist in the current catalog.
func (l *Library) Select(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.Catalog.Has(id) {
		return false
	}
	l.selected = id
	return true
}

// Selected returns the currently selected example ID, or empty.
func (l *Library) Selected() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

// SubscribeReloads returns a feed of reload deltas and a cancel func.
// Deltas for byte-identical rebuilds are never published.
func (l *Library) SubscribeReloads() (<-chan model.ReloadDelta, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan model.ReloadDelta, 16)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// loop is the single pipeline goroutine: it drains change events, captures
// prior content, reconciles the affected subtree, and publishes the result.
func (l *Library) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-l.watch.Events():
			if !ok {
				return
			}
			batch := []watcher.Event{ev}
		drain:
			for {
				select {
				case more, ok := <-l.watch.Events():
					if !ok {
						break drain
					}
					batch = append(batch, more)
				default:
					break drain
				}
			}
			l.applyBatch(batch)
		}
	}
}

// applyBatch runs the capture-then-reconcile ordering for one event batch:
// every changed path is captured from the previously loaded content before
// the reconciler reads the new on-disk state. Captures come from the prior
// catalog's cached bytes, so a revert restores what was loaded before the
// edit, never the just-written content.
func (l *Library) applyBatch(batch []watcher.Event) {
	l.mu.RLock()
	prev := l.state
	version := l.version
	l.mu.RUnlock()

	paths := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for _, ev := range batch {
		if _, ok := seen[ev.Path]; ok {
			continue
		}
		seen[ev.Path] = struct{}{}
		paths = append(paths, ev.Path)

		if content, ok := prev.Files[ev.Path]; ok {
			l.store.Capture(ev.Path, content, true)
		} else if ev.Op == watcher.OpCreated {
			// The file did not exist before: a later revert removes it
			// instead of writing empty content.
			l.store.Capture(ev.Path, nil, false)
		}
	}

	next, delta := l.builder.Reconcile(prev, paths, version+1)
	if next == prev {
		return
	}
	l.publish(next, delta)
}

// Refresh rebuilds the whole catalog, capturing prior content of every
// file the rebuild replaced. It is the manual fallback when hot reload is
// degraded, and the path a revert takes in unwatched mode.
func (l *Library) Refresh() error {
	l.mu.RLock()
	prev := l.state
	version := l.version
	l.mu.RUnlock()

	next, err := l.builder.Build(version + 1)
	if err != nil {
		return err
	}

	for path, content := range prev.Files {
		if now, ok := next.Files[path]; !ok || !bytes.Equal(now, content) {
			l.store.Capture(path, content, true)
		}
	}
	for path := range next.Files {
		if _, ok := prev.Files[path]; !ok {
			l.store.Capture(path, nil, false)
		}
	}

	delta := diffCatalogs(prev.Catalog, next.Catalog, version+1)
	if delta.Empty() && len(next.Warnings) == 0 {
		return nil
	}
	l.publish(next, delta)
	return nil
}

// publish swaps in the new state, preserves the selection when it
// survived, and notifies reload subscribers.
func (l *Library) publish(next *catalog.State, delta model.ReloadDelta) {
	l.mu.Lock()
	l.state = next
	l.version = next.Catalog.Version()
	l.loadErr = nil

	if l.selected != "" && !next.Catalog.Has(l.selected) {
		// The selected example disappeared: selection falls back to none,
		// never to an arbitrary other entry.
		l.logger.Info().Str("example", l.selected).Msg("Selected example removed; clearing selection")
		l.selected = ""
	}

	var feeds []chan model.ReloadDelta
	if !delta.Empty() {
		for _, ch := range l.subs {
			feeds = append(feeds, ch)
		}
	}
	l.mu.Unlock()

	for _, ch := range feeds {
		select {
		case ch <- delta:
		default:
			l.logger.Debug().Msg("Dropping reload delta for slow subscriber")
		}
	}

	if !delta.Empty() {
		l.logger.Info().
			Uint64("version", delta.Version).
			Int("changes", len(delta.Changes)).
			Msg("Catalog reloaded")
	}
}

// diffCatalogs classifies every example that differs between two full
// builds. Used by Refresh, where no changed-path set exists.
func diffCatalogs(prev, next *model.Catalog, version uint64) model.ReloadDelta {
	delta := model.ReloadDelta{Version: version}

	for _, ex := range prev.Examples() {
		if !next.Has(ex.ID) {
			delta.Changes = append(delta.Changes, model.ExampleChange{ID: ex.ID, Kind: model.ExampleRemoved})
		}
	}
	for _, ex := range next.Examples() {
		old, ok := prev.Get(ex.ID)
		switch {
		case !ok:
			delta.Changes = append(delta.Changes, model.ExampleChange{ID: ex.ID, Kind: model.ExampleAdded})
		case !exampleEqual(old, ex):
			delta.Changes = append(delta.Changes, model.ExampleChange{ID: ex.ID, Kind: model.ExampleModified})
		}
	}
	return delta
}

// exampleEqual compares two example values ignoring the load timestamp.
func exampleEqual(a, b model.Example) bool {
	a.LoadedAt = time.Time{}
	b.LoadedAt = time.Time{}
	return reflect.DeepEqual(a, b)
}

// RunExample evaluates an example's script through the engine.
func (l *Library) RunExample(ctx context.Context, exampleID string) (engine.ExecutionOutcome, error) {
	ex, ok := l.Catalog().Get(exampleID)
	if !ok {
		return engine.ExecutionOutcome{}, fmt.Errorf("unknown example %q", exampleID)
	}
	return l.eng.Execute(ctx, ex.ID, ex.Script)
}

// RunSuite runs one of an example's suites and returns its result.
func (l *Library) RunSuite(ctx context.Context, exampleID, suiteID string) (model.SuiteResult, error) {
	task, err := l.suiteTask(exampleID, suiteID)
	if err != nil {
		return model.SuiteResult{}, err
	}
	return l.runner.RunSuite(ctx, task), nil
}

// RunAll runs every suite of an example sequentially, seals the report,
// and appends it to the in-memory run log.
func (l *Library) RunAll(ctx context.Context, exampleID string) (model.RunReport, error) {
	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	ex, ok := state.Catalog.Get(exampleID)
	if !ok {
		return model.RunReport{}, fmt.Errorf("unknown example %q", exampleID)
	}

	tasks := make([]runner.Task, 0, len(ex.Suites))
	for _, suite := range ex.Suites {
		tasks = append(tasks, runner.Task{Suite: suite, Source: string(state.Files[suite.Path])})
	}

	report := l.runner.RunAll(ctx, exampleID, tasks)

	l.mu.Lock()
	l.runLog = append(l.runLog, report)
	l.mu.Unlock()

	return report, nil
}

// RunLog returns the reports of this process's completed batch runs.
func (l *Library) RunLog() []model.RunReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.RunReport(nil), l.runLog...)
}

// SnapshotHistory returns the captured versions of a path, newest first.
func (l *Library) SnapshotHistory(path string) []model.FileSnapshot {
	return l.store.History(path)
}

// Revert restores a captured snapshot of path; an empty snapshotID picks
// the most recent one. The restore is a plain filesystem write that
// re-enters the normal change pipeline; with hot reload unavailable the
// library refreshes explicitly instead. Reverting a path with no history
// fails with snapshot.ErrNoHistory and changes nothing.
func (l *Library) Revert(path, snapshotID string) error {
	var (
		snap model.FileSnapshot
		err  error
	)
	if snapshotID == "" {
		snap, err = l.store.Latest(path)
	} else {
		snap, err = l.store.Get(path, snapshotID)
	}
	if err != nil {
		return err
	}

	if err := l.store.Restore(snap); err != nil {
		return err
	}

	if l.watch == nil {
		return l.Refresh()
	}
	return nil
}

func (l *Library) suiteTask(exampleID, suiteID string) (runner.Task, error) {
	l.mu.RLock()
	state := l.state
	l.mu.RUnlock()

	ex, ok := state.Catalog.Get(exampleID)
	if !ok {
		return runner.Task{}, fmt.Errorf("unknown example %q", exampleID)
	}
	suite, ok := ex.Suite(suiteID)
	if !ok {
		return runner.Task{}, fmt.Errorf("example %q has no suite %q", exampleID, suiteID)
	}
	return runner.Task{Suite: suite, Source: string(state.Files[suite.Path])}, nil
}
