package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/multiplex55/koto-learning/model"
)

// Reconcile re-builds only the examples whose directory intersects the
// changed paths and carries every other entry over by reference, so
// untouched examples keep their identity for UI diffing. The returned delta
// classifies affected examples; rebuilds that turn out byte-identical are
// suppressed. With an empty changed set the previous state is returned
// unchanged, same identity and all.
func (b *Builder) Reconcile(prev *State, changed []string, version uint64) (*State, model.ReloadDelta) {
	unchanged := model.ReloadDelta{Version: prev.Catalog.Version()}
	if len(changed) == 0 {
		return prev, unchanged
	}

	affected := b.affectedDirs(changed)
	if len(affected) == 0 {
		return prev, unchanged
	}

	prevByDir := make(map[string]model.Example)
	for _, ex := range prev.Catalog.Examples() {
		prevByDir[ex.Dir] = ex
	}

	next := &State{Files: make(map[string][]byte, len(prev.Files))}
	var examples []model.Example
	for dir, content := range prev.Files {
		if !underAny(dir, affected) {
			next.Files[dir] = content
		}
	}
	for dir, ex := range prevByDir {
		if _, ok := affected[dir]; !ok {
			examples = append(examples, ex)
		}
	}

	var delta model.ReloadDelta
	dirty := false
	now := time.Now()

	dirs := make([]string, 0, len(affected))
	for dir := range affected {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		prevEx, hadPrev := prevByDir[dir]

		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			if hadPrev {
				delta.Changes = append(delta.Changes, model.ExampleChange{ID: prevEx.ID, Kind: model.ExampleRemoved})
				dirty = true
			}
			continue
		}

		example, files, warn := b.buildDir(dir, now)
		if warn != nil {
			next.Warnings = append(next.Warnings, *warn)
			b.logger.Warn().Str("example", warn.ID).Str("reason", warn.Reason).Msg("Skipping malformed example")
			if hadPrev {
				delta.Changes = append(delta.Changes, model.ExampleChange{ID: prevEx.ID, Kind: model.ExampleRemoved})
				dirty = true
			}
			continue
		}

		prevFiles := filesUnder(prev.Files, dir)

		switch {
		case hadPrev && prevEx.ID == example.ID:
			kinds := b.changedKinds(prevFiles, files)
			if len(kinds) == 0 {
				// Byte-identical rebuild: keep the previous value so readers
				// see the same identity, and emit nothing.
				examples = append(examples, prevEx)
				for path, content := range prevFiles {
					next.Files[path] = content
				}
				continue
			}
			examples = append(examples, example)
			delta.Changes = append(delta.Changes, model.ExampleChange{ID: example.ID, Kind: model.ExampleModified, Files: kinds})
		case hadPrev:
			// The folder kept its place but the declared ID changed.
			examples = append(examples, example)
			delta.Changes = append(delta.Changes,
				model.ExampleChange{ID: prevEx.ID, Kind: model.ExampleRemoved},
				model.ExampleChange{ID: example.ID, Kind: model.ExampleAdded},
			)
		default:
			examples = append(examples, example)
			delta.Changes = append(delta.Changes, model.ExampleChange{ID: example.ID, Kind: model.ExampleAdded})
		}

		dirty = true
		for path, content := range files {
			next.Files[path] = content
		}
	}

	if !dirty {
		return prev, unchanged
	}

	sortExamples(examples)
	next.Catalog = model.NewCatalog(examples, version)

	sort.Slice(delta.Changes, func(i, j int) bool {
		if delta.Changes[i].ID != delta.Changes[j].ID {
			return delta.Changes[i].ID < delta.Changes[j].ID
		}
		return delta.Changes[i].Kind < delta.Changes[j].Kind
	})
	delta.Version = version

	return next, delta
}

// affectedDirs maps changed paths to the example directories that own them.
// Paths outside the root are dropped.
func (b *Builder) affectedDirs(changed []string) map[string]struct{} {
	affected := make(map[string]struct{})
	for _, path := range changed {
		rel, err := filepath.Rel(b.cfg.Root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		affected[filepath.Join(b.cfg.Root, parts[0])] = struct{}{}
	}
	return affected
}

// changedKinds compares the files of one example directory across two
// builds and returns the kinds that differ, in kind order.
func (b *Builder) changedKinds(prevFiles, newFiles map[string][]byte) []model.FileKind {
	seen := make(map[model.FileKind]struct{})
	record := func(path string) {
		seen[b.classifyPath(path)] = struct{}{}
	}
	for path, content := range newFiles {
		if old, ok := prevFiles[path]; !ok || !bytes.Equal(old, content) {
			record(path)
		}
	}
	for path := range prevFiles {
		if _, ok := newFiles[path]; !ok {
			record(path)
		}
	}

	kinds := make([]model.FileKind, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// classifyPath determines what role a file plays within its example.
func (b *Builder) classifyPath(path string) model.FileKind {
	switch {
	case filepath.Base(path) == b.cfg.MetaFile:
		return model.FileMetadata
	case filepath.Base(filepath.Dir(path)) == "tests":
		return model.FileSuite
	case strings.HasSuffix(path, ".md"):
		return model.FileDoc
	default:
		return model.FileScript
	}
}

func filesUnder(files map[string][]byte, dir string) map[string][]byte {
	prefix := dir + string(filepath.Separator)
	out := make(map[string][]byte)
	for path, content := range files {
		if strings.HasPrefix(path, prefix) {
			out[path] = content
		}
	}
	return out
}

func underAny(path string, dirs map[string]struct{}) bool {
	for dir := range dirs {
		if strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
