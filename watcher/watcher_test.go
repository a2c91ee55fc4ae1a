package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testWatcherConfig(root string) Config {
	return Config{Root: root, ScriptExt: ".js", MetaFile: "meta.json", Debounce: 50 * time.Millisecond}
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	_, err := New(zerolog.Nop(), testWatcherConfig(filepath.Join(t.TempDir(), "nope")))
	require.ErrorIs(t, err, ErrWatchUnavailable)
}

func TestWatcher_Classify(t *testing.T) {
	root := t.TempDir()
	w := &Watcher{cfg: testWatcherConfig(root)}

	tests := []struct {
		name  string
		path  string
		class Class
		ok    bool
	}{
		{"script", filepath.Join(root, "ex", "script.js"), ClassScript, true},
		{"metadata", filepath.Join(root, "ex", "meta.json"), ClassMetadata, true},
		{"suite", filepath.Join(root, "ex", "tests", "basic.js"), ClassSuite, true},
		{"doc", filepath.Join(root, "ex", "README.md"), ClassDoc, true},
		{"nested doc", filepath.Join(root, "ex", "docs", "notes.md"), ClassDoc, true},
		{"top-level file", filepath.Join(root, "stray.js"), 0, false},
		{"outside root", filepath.Join(t.TempDir(), "ex", "script.js"), 0, false},
		{"wrong extension", filepath.Join(root, "ex", "notes.txt"), 0, false},
		{"nested script is not a script", filepath.Join(root, "ex", "sub", "script.js"), 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class, ok := w.classify(tc.path)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.class, class)
			}
		})
	}
}

func TestMergeOps(t *testing.T) {
	tests := []struct {
		earlier, later, want Op
	}{
		{OpCreated, OpModified, OpCreated},
		{OpRemoved, OpCreated, OpModified},
		{OpModified, OpModified, OpModified},
		{OpModified, OpRemoved, OpRemoved},
		{OpCreated, OpRemoved, OpRemoved},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, mergeOps(tc.earlier, tc.later))
	}
}

func TestWatcher_EmitsClassifiedEvents(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ex")
	require.NoError(t, os.MkdirAll(dir, 0755))

	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0644))

	ev := waitEvent(t, w.Events())
	require.Equal(t, path, ev.Path)
	require.Equal(t, OpCreated, ev.Op)
	require.Equal(t, ClassScript, ev.Class)
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ex")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0644))

	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)
	defer w.Close()

	// A burst of writes inside the window collapses into one event.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("burst"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	ev := waitEvent(t, w.Events())
	require.Equal(t, path, ev.Path)
	require.Equal(t, OpModified, ev.Op)

	requireNoEvent(t, w.Events())
}

func TestWatcher_IgnoresUnrecognizedPaths(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ex")
	require.NoError(t, os.MkdirAll(dir, 0755))

	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("x"), 0644))
	requireNoEvent(t, w.Events())
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()

	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)
	defer w.Close()

	// Create a whole example directory after the watch started.
	dir := filepath.Join(root, "late")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"title":"Late"}`), 0644))

	seen := map[string]Op{}
	for len(seen) < 1 {
		ev := waitEvent(t, w.Events())
		seen[ev.Path] = ev.Op
	}
	require.Equal(t, OpCreated, seen[filepath.Join(dir, "meta.json")])
}

func TestWatcher_Remove(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ex")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0644))

	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(path))

	ev := waitEvent(t, w.Events())
	require.Equal(t, path, ev.Path)
	require.Equal(t, OpRemoved, ev.Op)
}

func TestWatcher_CloseClosesEvents(t *testing.T) {
	root := t.TempDir()
	w, err := New(zerolog.Nop(), testWatcherConfig(root))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	// Close is idempotent.
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel did not close")
	}
}
