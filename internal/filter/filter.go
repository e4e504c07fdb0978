// Package filter evaluates declarative name filters against file paths and
// workbook item names (sheets, tables).
package filter

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind selects the comparison a Filter performs.
type Kind string

const (
	KindExact       Kind = "exact"
	KindGlob        Kind = "glob"
	KindContains    Kind = "contains"
	KindNotContains Kind = "not_contains"
	KindRegex       Kind = "regex"
	KindIsNot       Kind = "is_not"
)

// Target selects which part of a path the filter is applied to.
type Target string

const (
	TargetFilename Target = "filename"
	TargetPath     Target = "path"
)

// Filter is a single predicate. Zero Target means TargetFilename.
type Filter struct {
	Kind   Kind   `json:"kind"`
	Value  string `json:"value"`
	Target Target `json:"target,omitempty"`
}

// Match evaluates the filter against a bare name (no target selection).
// EXACT and IS_NOT are case-sensitive, everything else compares
// case-insensitively. A regex that does not compile matches nothing.
func (f Filter) Match(name string) bool {
	switch f.Kind {
	case KindExact:
		return name == f.Value
	case KindIsNot:
		return name != f.Value
	case KindContains:
		return strings.Contains(strings.ToLower(name), strings.ToLower(f.Value))
	case KindNotContains:
		return !strings.Contains(strings.ToLower(name), strings.ToLower(f.Value))
	case KindGlob:
		ok, err := doublestar.Match(strings.ToLower(f.Value), strings.ToLower(name))
		if err != nil {
			return false
		}
		return ok
	case KindRegex:
		re, err := regexp.Compile("(?i)" + f.Value)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	default:
		return false
	}
}

// MatchPath evaluates the filter against a file path, honouring Target:
// TargetFilename compares the final path element, TargetPath the whole path
// with separators normalized to '/'.
func (f Filter) MatchPath(path string) bool {
	candidate := filepath.Base(path)
	if f.Target == TargetPath {
		candidate = filepath.ToSlash(path)
	}
	return f.Match(candidate)
}

// MatchAll reports whether the path satisfies every filter (conjunction).
// An empty filter list matches everything.
func MatchAll(path string, filters []Filter) bool {
	for _, f := range filters {
		if !f.MatchPath(path) {
			return false
		}
	}
	return true
}

// MatchName reports whether a bare item name (sheet, table) satisfies every
// filter. Targets are ignored, the name is the candidate.
func MatchName(name string, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(name) {
			return false
		}
	}
	return true
}

// FilterNames returns the names matching all filters, preserving order.
func FilterNames(names []string, filters []Filter) []string {
	if len(filters) == 0 {
		return names
	}
	var out []string
	for _, n := range names {
		if MatchName(n, filters) {
			out = append(out, n)
		}
	}
	return out
}
