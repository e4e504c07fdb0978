// Package project serializes an engine session to a JSON project file and
// restores it: per-dataset loader config plus recipe, with relative or
// absolute source paths.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dataprep/internal/steps"
)

// Version is the current project file schema version.
const Version = "1.0"

// Meta describes the project file itself.
type Meta struct {
	Version     string `json:"version"`
	CreatedAt   string `json:"created_at,omitempty"`
	Description string `json:"description,omitempty"`
}

// PathMode selects how source paths are stored.
type PathMode string

const (
	PathsAbsolute PathMode = "absolute"
	PathsRelative PathMode = "relative"
)

// PathConfig records the path mode; BaseDir is required in relative mode.
type PathConfig struct {
	Mode    PathMode `json:"mode"`
	BaseDir string   `json:"base_dir,omitempty"`
}

// DatasetEntry is one dataset's full reload description.
type DatasetEntry struct {
	Alias        string         `json:"alias"`
	Loader       string         `json:"loader"`
	LoaderParams map[string]any `json:"loader_params,omitempty"`
	Recipe       []steps.Step   `json:"recipe,omitempty"`
}

// File is the complete project file structure.
type File struct {
	Meta     Meta           `json:"meta"`
	Paths    PathConfig     `json:"path_config"`
	Datasets []DatasetEntry `json:"datasets"`
}

// NewFile returns an empty project with current metadata, absolute paths.
func NewFile(description string) File {
	return File{
		Meta: Meta{
			Version:     Version,
			CreatedAt:   time.Now().Format(time.RFC3339),
			Description: description,
		},
		Paths: PathConfig{Mode: PathsAbsolute},
	}
}

// Save writes the project as indented JSON, creating parent directories.
func Save(f File, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save project: %w", err)
		}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// Load reads and parses a project file.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("load project: %w", err)
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("load project %s: invalid project file: %w", path, err)
	}
	return f, nil
}

// ResolvePaths converts a relative-mode project to absolute paths. The
// override base dir wins over the one stored in the file; absolute-mode
// projects pass through untouched.
func ResolvePaths(f File, baseOverride string) (File, error) {
	if f.Paths.Mode != PathsRelative {
		return f, nil
	}
	base := baseOverride
	if base == "" {
		base = f.Paths.BaseDir
	}
	if base == "" {
		return File{}, fmt.Errorf("relative path mode requires a base directory")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return File{}, fmt.Errorf("resolve base dir: %w", err)
	}

	out := f
	out.Paths = PathConfig{Mode: PathsAbsolute}
	out.Datasets = make([]DatasetEntry, len(f.Datasets))
	for i, ds := range f.Datasets {
		out.Datasets[i] = ds
		out.Datasets[i].LoaderParams = rewritePaths(ds.LoaderParams, func(p string) string {
			if filepath.IsAbs(p) {
				return p
			}
			return filepath.Join(abs, p)
		})
	}
	return out, nil
}

// ToRelative converts absolute source paths to paths relative to baseDir.
// Paths that cannot be made relative stay absolute.
func ToRelative(f File, baseDir string) File {
	out := f
	out.Paths = PathConfig{Mode: PathsRelative, BaseDir: baseDir}
	out.Datasets = make([]DatasetEntry, len(f.Datasets))
	for i, ds := range f.Datasets {
		out.Datasets[i] = ds
		out.Datasets[i].LoaderParams = rewritePaths(ds.LoaderParams, func(p string) string {
			if !filepath.IsAbs(p) {
				return p
			}
			rel, err := filepath.Rel(baseDir, p)
			if err != nil {
				return p
			}
			return rel
		})
	}
	return out
}

// rewritePaths copies params, applying fn to the "path" value and each entry
// of the "files" list. Other keys pass through untouched.
func rewritePaths(params map[string]any, fn func(string) string) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	if p, ok := out["path"].(string); ok && p != "" {
		out["path"] = fn(p)
	}
	if files, ok := out["files"].([]any); ok {
		rewritten := make([]any, len(files))
		for i, fv := range files {
			if s, ok := fv.(string); ok {
				rewritten[i] = fn(s)
			} else {
				rewritten[i] = fv
			}
		}
		out["files"] = rewritten
	}
	if files, ok := out["files"].([]string); ok {
		rewritten := make([]string, len(files))
		for i, s := range files {
			rewritten[i] = fn(s)
		}
		out["files"] = rewritten
	}
	return out
}

// ValidateFiles checks that file-loader sources exist, returning missing
// paths per dataset alias. Glob-ish paths are skipped; they cannot be
// checked with a plain stat.
func ValidateFiles(f File) map[string][]string {
	missing := make(map[string][]string)
	for _, ds := range f.Datasets {
		if ds.Loader != "file" {
			continue
		}
		var gone []string
		if p, ok := ds.LoaderParams["path"].(string); ok && p != "" && !strings.ContainsAny(p, "*?[") {
			if _, err := os.Stat(p); err != nil {
				gone = append(gone, p)
			}
		}
		for _, fv := range asStrings(ds.LoaderParams["files"]) {
			if _, err := os.Stat(fv); err != nil {
				gone = append(gone, fv)
			}
		}
		if len(gone) > 0 {
			missing[ds.Alias] = gone
		}
	}
	return missing
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
