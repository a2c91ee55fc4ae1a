// Package config holds the explorer's settings: defaults, an optional YAML
// config file, and environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables honored by FromEnv.
const (
	EnvExamplesDir   = "KOTO_EXAMPLES_DIR"
	EnvRuntimeLog    = "KOTO_RUNTIME_LOG"
	EnvSnapshotDepth = "KOTO_SNAPSHOT_DEPTH"
)

// Config carries all tunable settings of the explorer.
type Config struct {
	// Root directory containing one subdirectory per example
	ExamplesDir string `yaml:"examples_dir"`
	// Append-only runtime log file; empty disables the file sink
	RuntimeLog string `yaml:"runtime_log"`
	// File extension of script and suite files
	ScriptExt string `yaml:"script_ext"`
	// Name of the per-example metadata file
	MetaFile string `yaml:"meta_file"`
	// Window for coalescing filesystem event bursts per path
	Debounce time.Duration `yaml:"debounce"`
	// Snapshots retained per path; oldest evicted beyond this
	SnapshotDepth int `yaml:"snapshot_depth"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ExamplesDir:   "examples",
		RuntimeLog:    "",
		ScriptExt:     ".js",
		MetaFile:      "meta.json",
		Debounce:      150 * time.Millisecond,
		SnapshotDepth: 10,
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg.normalize(), nil
}

// FromEnv applies environment overrides on top of cfg.
func FromEnv(cfg Config) Config {
	if v := os.Getenv(EnvExamplesDir); v != "" {
		cfg.ExamplesDir = v
	}
	if v := os.Getenv(EnvRuntimeLog); v != "" {
		cfg.RuntimeLog = v
	}
	if v := os.Getenv(EnvSnapshotDepth); v != "" {
		if depth, err := strconv.Atoi(v); err == nil && depth > 0 {
			cfg.SnapshotDepth = depth
		}
	}
	return cfg.normalize()
}

func (c Config) normalize() Config {
	def := Default()
	if c.ExamplesDir == "" {
		c.ExamplesDir = def.ExamplesDir
	}
	if c.ScriptExt == "" {
		c.ScriptExt = def.ScriptExt
	}
	if c.MetaFile == "" {
		c.MetaFile = def.MetaFile
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.SnapshotDepth <= 0 {
		c.SnapshotDepth = def.SnapshotDepth
	}
	return c
}
