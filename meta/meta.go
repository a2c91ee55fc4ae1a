// Package meta parses on-disk example metadata and suite file headers.
package meta

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/multiplex55/koto-learning/model"
)

// ParseError reports malformed metadata. It is a per-entry diagnostic: the
// containing catalog build records it and moves on.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed metadata %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a meta.json document.
func Parse(path string, data []byte) (model.Metadata, error) {
	var md model.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return model.Metadata{}, &ParseError{Path: path, Err: err}
	}
	return md, nil
}

// SuiteHeader is the display name and description parsed from the comment
// header of a suite file.
type SuiteHeader struct {
	Name        string
	Description string
}

// ParseSuiteHeader scans the leading comment block of a suite script for
// "Title:" and "Description:" lines. Both "#" and "//" comment markers are
// accepted. The name falls back to fallbackID when no title is declared.
func ParseSuiteHeader(script, fallbackID string) SuiteHeader {
	header := SuiteHeader{Name: fallbackID}

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var content string
		switch {
		case strings.HasPrefix(trimmed, "//"):
			content = strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
		case strings.HasPrefix(trimmed, "#"):
			content = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		default:
			// Header ends at the first non-comment line.
			return header
		}
		if rest, ok := strings.CutPrefix(content, "Title:"); ok {
			header.Name = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(content, "Description:"); ok {
			header.Description = strings.TrimSpace(rest)
		}
	}

	return header
}
