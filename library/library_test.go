package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/multiplex55/koto-learning/config"
	"github.com/multiplex55/koto-learning/gojaengine"
	"github.com/multiplex55/koto-learning/model"
	"github.com/multiplex55/koto-learning/snapshot"
)

func testLibConfig(root string) config.Config {
	cfg := config.Default()
	cfg.ExamplesDir = root
	cfg.Debounce = 30 * time.Millisecond
	return cfg
}

func writeExample(t *testing.T, root, folder, metaJSON, script string, suites map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(metaJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte(script), 0644))
	for name, content := range suites {
		testsDir := filepath.Join(dir, "tests")
		require.NoError(t, os.MkdirAll(testsDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(testsDir, name), []byte(content), 0644))
	}
	return dir
}

func openLib(t *testing.T, root string, watch bool) *Library {
	t.Helper()
	eng := gojaengine.New(zerolog.Nop(), nil)
	lib, err := Open(zerolog.Nop(), testLibConfig(root), eng, watch)
	require.NoError(t, err)
	t.Cleanup(lib.Close)
	return lib
}

func waitDelta(t *testing.T, deltas <-chan model.ReloadDelta) model.ReloadDelta {
	t.Helper()
	select {
	case delta, ok := <-deltas:
		require.True(t, ok, "delta channel closed")
		return delta
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload delta")
		return model.ReloadDelta{}
	}
}

func TestLibrary_OpenAndRun(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "greeting", `{"title": "Greeting"}`, `print("hi"); "done";`, map[string]string{
		"basic.js": `// Title: Basics
var tests = {
	passes: function () {},
	fails: function () { throw "nope"; },
};
`,
	})

	lib := openLib(t, root, false)
	require.NoError(t, lib.LoadError())
	require.False(t, lib.Degraded())
	require.Equal(t, 1, lib.Catalog().Len())

	outcome, err := lib.RunExample(context.Background(), "greeting")
	require.NoError(t, err)
	require.Equal(t, "hi\n", outcome.Stdout)
	require.Equal(t, "done", outcome.ReturnValue)

	res, err := lib.RunSuite(context.Background(), "greeting", "basic")
	require.NoError(t, err)
	require.Len(t, res.Cases, 2)
	require.Equal(t, model.CasePassed, res.Cases[0].Status)
	require.Equal(t, model.CaseFailed, res.Cases[1].Status)

	report, err := lib.RunAll(context.Background(), "greeting")
	require.NoError(t, err)
	require.Equal(t, 1, report.Passed)
	require.Equal(t, 1, report.Failed)

	// Completed batch runs land in the run log.
	log := lib.RunLog()
	require.Len(t, log, 1)
	require.Equal(t, report.ID, log[0].ID)
}

func TestLibrary_UnknownTargets(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "ex", `{"title": "Ex"}`, "1", nil)

	lib := openLib(t, root, false)

	_, err := lib.RunExample(context.Background(), "ghost")
	require.Error(t, err)

	_, err = lib.RunSuite(context.Background(), "ex", "ghost")
	require.Error(t, err)

	_, err = lib.RunAll(context.Background(), "ghost")
	require.Error(t, err)
}

func TestLibrary_OpenWithMissingRoot(t *testing.T) {
	lib := openLib(t, filepath.Join(t.TempDir(), "nope"), false)

	// The library still opens; the catalog is just empty.
	require.Error(t, lib.LoadError())
	require.Equal(t, 0, lib.Catalog().Len())
}

func TestLibrary_Selection(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "ex", `{"title": "Ex"}`, "1", nil)

	lib := openLib(t, root, false)

	require.False(t, lib.Select("ghost"))
	require.Empty(t, lib.Selected())
	require.True(t, lib.Select("ex"))
	require.Equal(t, "ex", lib.Selected())
}

func TestLibrary_HotReload(t *testing.T) {
	root := t.TempDir()
	dir := writeExample(t, root, "ex", `{"title": "Ex"}`, "original", nil)

	lib := openLib(t, root, true)
	require.False(t, lib.Degraded())

	deltas, cancel := lib.SubscribeReloads()
	defer cancel()

	script := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(script, []byte("edited"), 0644))

	delta := waitDelta(t, deltas)
	require.Equal(t, uint64(2), delta.Version)
	require.Len(t, delta.Changes, 1)
	require.Equal(t, "ex", delta.Changes[0].ID)
	require.Equal(t, model.ExampleModified, delta.Changes[0].Kind)

	ex, ok := lib.Catalog().Get("ex")
	require.True(t, ok)
	require.Equal(t, "edited", ex.Script)

	// The pre-edit content was captured before the reload.
	history := lib.SnapshotHistory(script)
	require.Len(t, history, 1)
	require.Equal(t, []byte("original"), history[0].Content)
	require.True(t, history[0].Existed)
}

func TestLibrary_HotReload_RemovalClearsSelection(t *testing.T) {
	root := t.TempDir()
	dir := writeExample(t, root, "doomed", `{"title": "Doomed"}`, "1", nil)
	writeExample(t, root, "stays", `{"title": "Stays"}`, "1", nil)

	lib := openLib(t, root, true)
	require.True(t, lib.Select("doomed"))

	deltas, cancel := lib.SubscribeReloads()
	defer cancel()

	require.NoError(t, os.RemoveAll(dir))

	delta := waitDelta(t, deltas)
	require.Len(t, delta.Changes, 1)
	require.Equal(t, model.ExampleChange{ID: "doomed", Kind: model.ExampleRemoved}, delta.Changes[0])

	// Selection falls back to none, never to another example.
	require.Empty(t, lib.Selected())
	require.True(t, lib.Catalog().Has("stays"))
}

func TestLibrary_RevertRoundTrip(t *testing.T) {
	root := t.TempDir()
	dir := writeExample(t, root, "ex", `{"title": "Ex"}`, "pristine", nil)

	lib := openLib(t, root, true)

	deltas, cancel := lib.SubscribeReloads()
	defer cancel()

	script := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(script, []byte("broken edit"), 0644))
	waitDelta(t, deltas)

	// Reverting writes the snapshot back; the change pipeline picks the
	// write up like any other edit.
	require.NoError(t, lib.Revert(script, ""))
	delta := waitDelta(t, deltas)
	require.Equal(t, model.ExampleModified, delta.Changes[0].Kind)

	ex, ok := lib.Catalog().Get("ex")
	require.True(t, ok)
	require.Equal(t, "pristine", ex.Script)
}

func TestLibrary_RevertWithoutHistory(t *testing.T) {
	root := t.TempDir()
	writeExample(t, root, "ex", `{"title": "Ex"}`, "1", nil)

	lib := openLib(t, root, false)
	err := lib.Revert(filepath.Join(root, "ex", "script.js"), "")
	require.ErrorIs(t, err, snapshot.ErrNoHistory)
}

func TestLibrary_RefreshUnwatched(t *testing.T) {
	root := t.TempDir()
	dir := writeExample(t, root, "ex", `{"title": "Ex"}`, "v1", nil)

	lib := openLib(t, root, false)

	script := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(script, []byte("v2"), 0644))
	writeExample(t, root, "later", `{"title": "Later"}`, "1", nil)

	deltas, cancel := lib.SubscribeReloads()
	defer cancel()

	require.NoError(t, lib.Refresh())

	delta := waitDelta(t, deltas)
	require.Equal(t, uint64(2), delta.Version)
	kinds := map[string]model.ChangeKind{}
	for _, c := range delta.Changes {
		kinds[c.ID] = c.Kind
	}
	require.Equal(t, model.ExampleModified, kinds["ex"])
	require.Equal(t, model.ExampleAdded, kinds["later"])

	// The replaced content is captured for revert.
	history := lib.SnapshotHistory(script)
	require.Len(t, history, 1)
	require.Equal(t, []byte("v1"), history[0].Content)
}

func TestLibrary_RevertUnwatchedRefreshes(t *testing.T) {
	root := t.TempDir()
	dir := writeExample(t, root, "ex", `{"title": "Ex"}`, "v1", nil)

	lib := openLib(t, root, false)

	script := filepath.Join(dir, "script.js")
	require.NoError(t, os.WriteFile(script, []byte("v2"), 0644))
	require.NoError(t, lib.Refresh())

	// Without a watcher the revert refreshes explicitly.
	require.NoError(t, lib.Revert(script, ""))
	ex, ok := lib.Catalog().Get("ex")
	require.True(t, ok)
	require.Equal(t, "v1", ex.Script)
}
