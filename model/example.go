package model

import "time"

// Metadata describes an example as declared in its meta.json file.
type Metadata struct {
	// Unique ID for the example; derived from the folder name when empty
	ID string `json:"id,omitempty"`
	// Short human-readable title
	Title string `json:"title"`
	// Longer description shown in the detail view
	Description string `json:"description"`
	// Optional free-form note
	Note string `json:"note,omitempty"`
	// Optional link to external documentation
	DocURL string `json:"doc_url,omitempty"`
	// Optional instructions shown before running the example
	RunInstructions string `json:"run_instructions,omitempty"`
	// Categories used for grouping and filtering
	Categories []string `json:"categories,omitempty"`
	// Additional documentation links
	Documentation []Link `json:"documentation,omitempty"`
	// Step-by-step explanation of the example
	HowItWorks []string `json:"how_it_works,omitempty"`
	// Inputs the example script reads at runtime
	Inputs []Input `json:"inputs,omitempty"`
	// Explicit display order; examples without one follow folder order
	Order *int `json:"order,omitempty"`
	// Optional benchmark resource associated with the example
	Benchmarks *Resource `json:"benchmarks,omitempty"`
	// Optional test resource associated with the example
	Tests *Resource `json:"tests,omitempty"`
}

// Link is a labeled URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Input describes a runtime input of an example script.
type Input struct {
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Resource points at an auxiliary resource (benchmark report, test docs).
type Resource struct {
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// TestSuite identifies one test-suite file belonging to an example.
// Name and Description come from the suite file's comment header and fall
// back to the file stem.
type TestSuite struct {
	// Suite ID, the file stem (e.g. "basic" for tests/basic.js)
	ID string `json:"id"`
	// Display name
	Name string `json:"name"`
	// Optional description
	Description string `json:"description,omitempty"`
	// Absolute path of the suite file
	Path string `json:"path"`
}

// Example is one loaded catalog entry. Examples are immutable once
// constructed; a reload produces a new value, never an in-place mutation.
type Example struct {
	// Unique ID, stable across reloads as long as the folder keeps its name
	ID string `json:"id"`
	// Parsed metadata from meta.json
	Meta Metadata `json:"meta"`
	// Directory the example was loaded from
	Dir string `json:"dir"`
	// Absolute path of the script file
	ScriptPath string `json:"script_path"`
	// Script source as read at load time
	Script string `json:"-"`
	// Test suites declared under the tests subdirectory, sorted by name
	Suites []TestSuite `json:"suites,omitempty"`
	// Absolute path of the documentation file, if present
	DocPath string `json:"doc_path,omitempty"`
	// Timestamp of the load that produced this value
	LoadedAt time.Time `json:"loaded_at"`
}

// Suite returns the example's suite with the given ID.
func (e Example) Suite(id string) (TestSuite, bool) {
	for _, s := range e.Suites {
		if s.ID == id {
			return s, true
		}
	}
	return TestSuite{}, false
}
