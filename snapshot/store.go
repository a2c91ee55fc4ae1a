// Package snapshot keeps bounded per-path history of prior file content so
// a reload can be reverted.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/multiplex55/koto-learning/model"
)

// ErrNoHistory means a revert was requested for a path with nothing
// captured. No state changes.
var ErrNoHistory = errors.New("no snapshot history for path")

// Store holds captured file versions, newest first, at most depth entries
// per path. Captures happen on the reload path while reverts read history
// from elsewhere, so access is serialized with a mutex.
type Store struct {
	logger zerolog.Logger
	depth  int

	mu      sync.Mutex
	history map[string][]model.FileSnapshot
}

// NewStore returns a store retaining at most depth snapshots per path.
func NewStore(logger zerolog.Logger, depth int) *Store {
	if depth < 1 {
		depth = 1
	}
	return &Store{
		logger:  logger,
		depth:   depth,
		history: make(map[string][]model.FileSnapshot),
	}
}

// Capture records the previous content of path before a reload replaces
// it. existed=false marks a path that had no file at capture time, which is
// distinct from a file with empty content: reverting to such a snapshot
// removes the file.
func (s *Store) Capture(path string, content []byte, existed bool) model.FileSnapshot {
	snap := model.FileSnapshot{
		ID:         uuid.NewString(),
		Path:       path,
		Content:    append([]byte(nil), content...),
		Existed:    existed,
		Size:       int64(len(content)),
		CapturedAt: time.Now(),
	}

	s.mu.Lock()
	entries := append([]model.FileSnapshot{snap}, s.history[path]...)
	if len(entries) > s.depth {
		entries = entries[:s.depth]
	}
	s.history[path] = entries
	s.mu.Unlock()

	s.logger.Debug().
		Str("path", path).
		Str("snapshot", snap.ID).
		Bool("existed", existed).
		Msg("Captured file snapshot")

	return snap
}

// History returns the snapshots for path, newest first.
func (s *Store) History(path string) []model.FileSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.FileSnapshot(nil), s.history[path]...)
}

// Latest returns the most recent snapshot for path.
func (s *Store) Latest(path string) (model.FileSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[path]
	if len(entries) == 0 {
		return model.FileSnapshot{}, fmt.Errorf("%w: %s", ErrNoHistory, path)
	}
	return entries[0], nil
}

// Get returns the snapshot with the given ID for path.
func (s *Store) Get(path, id string) (model.FileSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.history[path] {
		if snap.ID == id {
			return snap, nil
		}
	}
	return model.FileSnapshot{}, fmt.Errorf("%w: %s (snapshot %s)", ErrNoHistory, path, id)
}

// Restore writes the snapshot's bytes back to disk, or removes the file
// for a snapshot captured before the file first existed. The write is a
// plain filesystem edit; the change detector picks it up like any other.
func (s *Store) Restore(snap model.FileSnapshot) error {
	if !snap.Existed {
		if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", snap.Path, err)
		}
		s.logger.Info().Str("path", snap.Path).Str("snapshot", snap.ID).Msg("Removed file created after snapshot")
		return nil
	}

	if err := os.WriteFile(snap.Path, snap.Content, 0o644); err != nil {
		return fmt.Errorf("failed to restore %s: %w", snap.Path, err)
	}
	s.logger.Info().Str("path", snap.Path).Str("snapshot", snap.ID).Msg("Restored file snapshot")
	return nil
}
