package project

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
)

// RunLoader loads a dataset from a loader kind and its generic params.
// *source.Registry's Run method satisfies this; tests substitute fakes.
type RunLoader func(ctx context.Context, kind string, params map[string]any) ([]dataframe.Plan, engine.LoadMetadata, error)

// ImportMode controls what happens to datasets already in the engine.
type ImportMode string

const (
	// ModeReplace clears the engine before loading the project.
	ModeReplace ImportMode = "replace"
	// ModeMerge keeps existing datasets and skips conflicting aliases.
	ModeMerge ImportMode = "merge"
)

// ImportResult reports what an import did. Success means no load errors;
// skipped datasets (missing files, merge conflicts) only produce warnings.
type ImportResult struct {
	Loaded   []string
	Skipped  []string
	Warnings []string
	Errors   []string
}

func (r *ImportResult) Success() bool { return len(r.Errors) == 0 }

// Importer restores projects into an engine.
type Importer struct {
	Engine *engine.Engine
	Run    RunLoader
	Log    zerolog.Logger
}

// Export snapshots the engine as a project file. Derived datasets (those
// without loader metadata) are skipped with no way to re-create them from a
// project file.
func (im *Importer) Export(description string, mode PathMode, baseDir string) File {
	f := NewFile(description)
	for _, name := range im.Engine.Names() {
		ds, ok := im.Engine.Dataset(name)
		if !ok || ds.Meta.LoaderKind == "" || ds.Meta.LoaderKind == "derived" {
			continue
		}
		f.Datasets = append(f.Datasets, DatasetEntry{
			Alias:        name,
			Loader:       ds.Meta.LoaderKind,
			LoaderParams: ds.Meta.LoaderParams,
			Recipe:       im.Engine.Recipe(name),
		})
	}
	if mode == PathsRelative && baseDir != "" {
		f = ToRelative(f, baseDir)
	}
	return f
}

// SaveTo exports the current session and writes it to path.
func (im *Importer) SaveTo(path, description string, mode PathMode, baseDir string) error {
	return Save(im.Export(description, mode, baseDir), path)
}

// Import loads a project's datasets and recipes into the engine. Relative
// paths resolve against baseOverride (or the file's stored base dir). One
// dataset failing to load does not abort the rest.
func (im *Importer) Import(ctx context.Context, f File, mode ImportMode, baseOverride string) ImportResult {
	var result ImportResult

	resolved, err := ResolvePaths(f, baseOverride)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	missing := ValidateFiles(resolved)

	if mode == ModeReplace {
		for _, name := range im.Engine.Names() {
			im.Engine.RemoveDataset(name)
		}
	}

	existing := make(map[string]bool)
	for _, name := range im.Engine.Names() {
		existing[name] = true
	}

	for _, ds := range resolved.Datasets {
		if mode == ModeMerge && existing[ds.Alias] {
			result.Skipped = append(result.Skipped, ds.Alias)
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %q: already exists", ds.Alias))
			continue
		}
		if gone, ok := missing[ds.Alias]; ok {
			result.Skipped = append(result.Skipped, ds.Alias)
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %q: missing files: %v", ds.Alias, gone))
			continue
		}

		plans, meta, err := im.Run(ctx, ds.Loader, ds.LoaderParams)
		if err != nil {
			result.Skipped = append(result.Skipped, ds.Alias)
			result.Errors = append(result.Errors, fmt.Sprintf("load %q: %v", ds.Alias, err))
			continue
		}
		if err := im.Engine.AddDataset(ds.Alias, plans, meta); err != nil {
			result.Skipped = append(result.Skipped, ds.Alias)
			result.Errors = append(result.Errors, fmt.Sprintf("register %q: %v", ds.Alias, err))
			continue
		}
		if len(ds.Recipe) > 0 {
			im.Engine.SetRecipe(ds.Alias, ds.Recipe)
		}
		result.Loaded = append(result.Loaded, ds.Alias)
	}

	im.Log.Info().
		Strs("loaded", result.Loaded).
		Strs("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("project imported")
	return result
}

// ImportFile loads a project file, resolving relative paths against the
// file's own directory.
func (im *Importer) ImportFile(ctx context.Context, path string, mode ImportMode) (ImportResult, error) {
	f, err := Load(path)
	if err != nil {
		return ImportResult{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ImportResult{}, err
	}
	return im.Import(ctx, f, mode, filepath.Dir(abs)), nil
}
