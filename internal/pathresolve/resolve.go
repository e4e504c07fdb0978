// Package pathresolve turns a base path plus filters into a concrete list of
// files. When a directory base is combined with a filename filter it
// synthesizes a glob so only the matching subtree is enumerated; otherwise it
// falls back to a streaming recursive walk that stops as soon as the result
// limit is reached.
package pathresolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"dataprep/internal/filter"
)

// Error reports a failed resolution rooted at Path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("resolve %s: %v", e.Path, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// errStop aborts streaming once the limit is reached.
var errStop = errors.New("pathresolve: stop")

// Resolver resolves base paths. WalkDir is a seam for tests.
type Resolver struct {
	WalkDir func(root string, fn fs.WalkDirFunc) error
	Log     zerolog.Logger
}

func New() *Resolver {
	return &Resolver{
		WalkDir: filepath.WalkDir,
		Log:     zerolog.Nop(),
	}
}

// Resolve returns the files under base that satisfy every filter.
// limit <= 0 means unlimited. Semantics by base:
//
//   - existing file: the file itself (still subject to filters)
//   - glob pattern: streamed glob expansion
//   - existing directory, no filters: the directory itself, untouched, for
//     callers that bulk-read directories
//   - existing directory, filters: synthesized glob when a filename filter
//     allows it, else a streaming recursive walk
//
// Candidate order is filesystem enumeration order; no sorting happens here.
func (r *Resolver) Resolve(base string, filters []filter.Filter, limit int) ([]string, error) {
	if base == "" {
		return nil, nil
	}

	info, statErr := os.Stat(base)
	isDir := statErr == nil && info.IsDir()
	isFile := statErr == nil && !info.IsDir()

	if len(filters) == 0 && isDir {
		return []string{base}, nil
	}

	var out []string
	emit := func(p string) error {
		if !filter.MatchAll(p, filters) {
			return nil
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	}

	var err error
	switch {
	case isFile:
		err = emit(base)
	case hasGlobMeta(base):
		err = r.globWalk(base, emit)
	case isDir:
		if pattern, ok := optimizeToGlob(base, filters); ok {
			r.Log.Debug().Str("base", base).Str("pattern", pattern).Msg("filters optimized to glob")
			err = r.globWalk(pattern, emit)
		} else {
			err = r.walk(base, emit)
		}
	default:
		return nil, nil
	}

	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

// optimizeToGlob synthesizes a glob pattern from the highest-priority
// filename filter: EXACT beats GLOB beats CONTAINS. Path-targeted and
// negative filters never qualify; they are re-checked on every candidate
// anyway.
func optimizeToGlob(base string, filters []filter.Filter) (string, bool) {
	pick := func(kind filter.Kind) (filter.Filter, bool) {
		for _, f := range filters {
			if f.Kind == kind && f.Target != filter.TargetPath {
				return f, true
			}
		}
		return filter.Filter{}, false
	}

	if f, ok := pick(filter.KindExact); ok {
		return filepath.Join(base, f.Value), true
	}
	if f, ok := pick(filter.KindGlob); ok {
		return filepath.Join(base, f.Value), true
	}
	if f, ok := pick(filter.KindContains); ok {
		return filepath.Join(base, "**", "*"+f.Value+"*"), true
	}
	return "", false
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// globWalk streams glob matches, so a downstream limit stops enumeration.
func (r *Resolver) globWalk(pattern string, emit func(string) error) error {
	root, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	err := doublestar.GlobWalk(os.DirFS(root), rest, func(p string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		return emit(filepath.Join(root, filepath.FromSlash(p)))
	})
	if err != nil && !errors.Is(err, errStop) {
		if errors.Is(err, doublestar.ErrBadPattern) {
			return &Error{Path: pattern, Err: err}
		}
		return err
	}
	if err != nil {
		return errStop
	}
	return nil
}

// walk recursively streams regular files under root. Unreadable subtrees are
// skipped; a failure on root itself is an error.
func (r *Resolver) walk(root string, emit func(string) error) error {
	return r.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return &Error{Path: root, Err: err}
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return emit(p)
	})
}

// ListDir returns the regular files directly inside dir, used when a bare
// directory base must be expanded into its files.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Path: dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
