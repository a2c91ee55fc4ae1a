package model

import "time"

// FileSnapshot is a captured prior version of a file, taken before a
// reload replaced its content. Used only for revert; it never feeds the
// catalog directly.
type FileSnapshot struct {
	// Unique snapshot ID (UUID), used to address a revert target
	ID string `json:"id"`
	// Path the content was captured from
	Path string `json:"path"`
	// Captured bytes; empty when the file did not exist
	Content []byte `json:"-"`
	// Whether the file existed at capture time. A snapshot of a file that
	// did not exist reverts by deleting it; this is distinct from a file
	// that existed with empty content.
	Existed bool `json:"existed"`
	// Size of the captured content in bytes
	Size int64 `json:"size"`
	// Capture timestamp
	CapturedAt time.Time `json:"captured_at"`
}
