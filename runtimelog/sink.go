// Package runtimelog forwards line-oriented engine log emissions to an
// append-only file and to live subscribers. The orchestration layer never
// parses the content; bytes go through as-is and the file is only ever
// appended to.
package runtimelog

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Sink is an io.Writer fanning complete lines out to the log file and all
// subscribers. Partial writes are buffered until a newline arrives.
type Sink struct {
	logger zerolog.Logger

	mu      sync.Mutex
	file    *os.File
	partial bytes.Buffer
	subs    map[int]chan string
	nextSub int
	closed  bool
}

// Open creates a sink appending to path. An empty path disables the file;
// subscribers still receive the feed.
func Open(logger zerolog.Logger, path string) (*Sink, error) {
	s := &Sink{logger: logger, subs: make(map[int]chan string)}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open runtime log %s: %w", path, err)
		}
		s.file = f
		logger.Debug().Str("path", path).Msg("Runtime log opened")
	}
	return s, nil
}

// Write appends p to the file and feeds completed lines to subscribers.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}

	if s.file != nil {
		if _, err := s.file.Write(p); err != nil {
			return 0, err
		}
	}

	s.partial.Write(p)
	for {
		line, err := s.partial.ReadString('\n')
		if err != nil {
			// Keep the incomplete tail for the next write.
			s.partial.Reset()
			s.partial.WriteString(line)
			break
		}
		s.fanOut(line[:len(line)-1])
	}

	return len(p), nil
}

// Subscribe returns a feed of complete log lines and a cancel func. Slow
// subscribers drop lines rather than stalling the writer.
func (s *Sink) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan string, 128)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close flushes any partial line and closes the file and all feeds.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.partial.Len() > 0 {
		s.fanOut(s.partial.String())
		s.partial.Reset()
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *Sink) fanOut(line string) {
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			// Dropped on a full feed; the file still has the line.
		}
	}
}
