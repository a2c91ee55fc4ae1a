package model

// FileKind classifies a file belonging to an example.
type FileKind uint8

const (
	FileScript FileKind = iota
	FileMetadata
	FileSuite
	FileDoc
)

// String returns the lower-case name of the kind.
func (k FileKind) String() string {
	switch k {
	case FileScript:
		return "script"
	case FileMetadata:
		return "metadata"
	case FileSuite:
		return "suite"
	case FileDoc:
		return "doc"
	}
	return "unknown"
}

// ChangeKind classifies how an example changed between two catalogs.
type ChangeKind uint8

const (
	ExampleAdded ChangeKind = iota
	ExampleModified
	ExampleRemoved
)

// String returns the lower-case name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ExampleAdded:
		return "added"
	case ExampleModified:
		return "modified"
	case ExampleRemoved:
		return "removed"
	}
	return "unknown"
}

// ExampleChange records one example affected by a reconciliation pass.
type ExampleChange struct {
	// ID of the affected example
	ID string `json:"id"`
	// How the example changed
	Kind ChangeKind `json:"kind"`
	// File kinds that changed; set only for modified examples
	Files []FileKind `json:"files,omitempty"`
}

// ReloadDelta is the set of catalog changes produced by one reconciliation
// pass. Rebuilt-but-byte-identical examples are suppressed, so an empty
// delta means nothing observable changed.
type ReloadDelta struct {
	// Version of the catalog the delta led to
	Version uint64 `json:"version"`
	// Affected examples, in catalog order
	Changes []ExampleChange `json:"changes,omitempty"`
}

// Empty reports whether the delta carries no changes.
func (d ReloadDelta) Empty() bool {
	return len(d.Changes) == 0
}
