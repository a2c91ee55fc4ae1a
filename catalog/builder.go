// Package catalog loads the example catalog from a directory tree and
// reconciles it incrementally when files change.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/multiplex55/koto-learning/meta"
	"github.com/multiplex55/koto-learning/model"
)

// ErrBuild means the catalog root itself is missing or unreadable. It is
// fatal to the containing load; per-example problems are warnings instead.
var ErrBuild = errors.New("catalog build failed")

// MalformedExampleError is a per-entry diagnostic. The affected example is
// skipped; the rest of the catalog loads normally.
type MalformedExampleError struct {
	// ID of the affected example (the folder name when metadata is unusable)
	ID string
	// Why the example was skipped
	Reason string
}

func (e MalformedExampleError) Error() string {
	return fmt.Sprintf("malformed example %q: %s", e.ID, e.Reason)
}

// Config carries the builder's layout settings.
type Config struct {
	// Root directory with one subdirectory per example
	Root string
	// Extension of script and suite files (e.g. ".js")
	ScriptExt string
	// Name of the metadata file (e.g. "meta.json")
	MetaFile string
}

// ScriptFile returns the expected script file name.
func (c Config) ScriptFile() string {
	return "script" + c.ScriptExt
}

// State is one immutable catalog snapshot together with the raw bytes of
// every file it was built from. The file contents back byte-identity checks
// during reconciliation and snapshot capture before reloads.
type State struct {
	Catalog *model.Catalog
	// File contents keyed by absolute path, as read at build time
	Files map[string][]byte
	// Per-example diagnostics from this pass
	Warnings []MalformedExampleError
}

// Builder enumerates example directories and produces catalog states.
type Builder struct {
	logger zerolog.Logger
	cfg    Config
}

// New returns a builder for the given root layout.
func New(logger zerolog.Logger, cfg Config) *Builder {
	return &Builder{logger: logger, cfg: cfg}
}

// Build loads the full catalog. A missing or unreadable root wraps ErrBuild;
// a directory missing its script or metadata file is skipped with a
// recorded warning so one malformed example cannot block the rest.
func (b *Builder) Build(version uint64) (*State, error) {
	entries, err := os.ReadDir(b.cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrBuild, b.cfg.Root, err)
	}

	state := &State{Files: make(map[string][]byte)}
	var examples []model.Example
	now := time.Now()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(b.cfg.Root, entry.Name())
		example, files, warn := b.buildDir(dir, now)
		if warn != nil {
			state.Warnings = append(state.Warnings, *warn)
			b.logger.Warn().Str("example", warn.ID).Str("reason", warn.Reason).Msg("Skipping malformed example")
			continue
		}
		examples = append(examples, example)
		for path, content := range files {
			state.Files[path] = content
		}
	}

	sortExamples(examples)
	state.Catalog = model.NewCatalog(examples, version)

	b.logger.Info().
		Str("root", b.cfg.Root).
		Int("count", len(examples)).
		Int("warnings", len(state.Warnings)).
		Msg("Catalog loaded")

	return state, nil
}

// buildDir loads a single example directory. The returned warning is
// non-nil when the directory must be skipped.
func (b *Builder) buildDir(dir string, now time.Time) (model.Example, map[string][]byte, *MalformedExampleError) {
	folder := filepath.Base(dir)
	skip := func(reason string) (model.Example, map[string][]byte, *MalformedExampleError) {
		return model.Example{}, nil, &MalformedExampleError{ID: folder, Reason: reason}
	}

	metaPath := filepath.Join(dir, b.cfg.MetaFile)
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return skip(fmt.Sprintf("missing metadata file: %v", err))
	}

	scriptPath := filepath.Join(dir, b.cfg.ScriptFile())
	scriptBytes, err := os.ReadFile(scriptPath)
	if err != nil {
		return skip(fmt.Sprintf("missing script file: %v", err))
	}

	md, err := meta.Parse(metaPath, metaBytes)
	if err != nil {
		return skip(err.Error())
	}
	if md.Title == "" {
		return skip("metadata is missing required field: title")
	}
	if md.ID == "" {
		md.ID = folder
	}

	files := map[string][]byte{
		metaPath:   metaBytes,
		scriptPath: scriptBytes,
	}

	example := model.Example{
		ID:         md.ID,
		Meta:       md,
		Dir:        dir,
		ScriptPath: scriptPath,
		Script:     string(scriptBytes),
		LoadedAt:   now,
	}

	docPath := filepath.Join(dir, "README.md")
	if docBytes, err := os.ReadFile(docPath); err == nil {
		example.DocPath = docPath
		files[docPath] = docBytes
	}

	suites, suiteFiles, err := b.loadSuites(dir)
	if err != nil {
		return skip(err.Error())
	}
	example.Suites = suites
	for path, content := range suiteFiles {
		files[path] = content
	}

	return example, files, nil
}

// loadSuites reads the example's tests subdirectory. Absence of the
// directory means no suites, not an error.
func (b *Builder) loadSuites(dir string) ([]model.TestSuite, map[string][]byte, error) {
	testsDir := filepath.Join(dir, "tests")
	entries, err := os.ReadDir(testsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("unreadable tests directory: %v", err)
	}

	var suites []model.TestSuite
	files := make(map[string][]byte)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), b.cfg.ScriptExt) {
			continue
		}
		path := filepath.Join(testsDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("unreadable suite file %s: %v", path, err)
		}
		id := strings.TrimSuffix(entry.Name(), b.cfg.ScriptExt)
		header := meta.ParseSuiteHeader(string(content), id)
		suites = append(suites, model.TestSuite{
			ID:          id,
			Name:        header.Name,
			Description: header.Description,
			Path:        path,
		})
		files[path] = content
	}

	sort.Slice(suites, func(i, j int) bool {
		if suites[i].Name != suites[j].Name {
			return suites[i].Name < suites[j].Name
		}
		return suites[i].ID < suites[j].ID
	})

	return suites, files, nil
}

// sortExamples applies display order: entries with an explicit metadata
// order field come first, sorted by that field; everything else follows in
// folder-name order. Folder name breaks ties.
func sortExamples(examples []model.Example) {
	sort.SliceStable(examples, func(i, j int) bool {
		oi, oj := orderKey(examples[i]), orderKey(examples[j])
		if oi != oj {
			return oi < oj
		}
		return filepath.Base(examples[i].Dir) < filepath.Base(examples[j].Dir)
	})
}

func orderKey(ex model.Example) int {
	if ex.Meta.Order != nil {
		return *ex.Meta.Order
	}
	return math.MaxInt
}
