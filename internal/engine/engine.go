// Package engine holds the dataset registry, the per-dataset recipe store
// and the recipe execution machinery: step application, the recipe fold, and
// the preview/full/per-file strategies.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/steps"
)

// LoadMetadata records where a dataset came from, enough to re-create the
// load for project files.
type LoadMetadata struct {
	LoaderKind   string         `json:"loader_kind,omitempty"`
	LoaderParams map[string]any `json:"loader_params,omitempty"`
	SourcePaths  []string       `json:"source_paths,omitempty"`
	PerFile      bool           `json:"per_file,omitempty"`
	SourceInfo   bool           `json:"source_info,omitempty"`
}

// Dataset is one registered source: one plan normally, one plan per source
// file in per-file mode.
type Dataset struct {
	Name  string
	Plans []dataframe.Plan
	Meta  LoadMetadata
}

// Combined is the dataset as a single plan, diagonally concatenated in
// per-file mode.
func (d *Dataset) Combined() dataframe.Plan {
	if len(d.Plans) == 1 {
		return d.Plans[0]
	}
	return dataframe.Concat(d.Plans)
}

// Engine owns datasets and recipes. All access goes through the mutex; plans
// themselves are immutable once registered.
type Engine struct {
	registry *steps.Registry
	log      zerolog.Logger

	mu       sync.RWMutex
	datasets map[string]*Dataset
	recipes  map[string][]steps.Step
}

func New(registry *steps.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		log:      log,
		datasets: make(map[string]*Dataset),
		recipes:  make(map[string][]steps.Step),
	}
}

// AddDataset registers (or replaces) a dataset. A replace keeps the existing
// recipe; a fresh name starts with an empty one.
func (e *Engine) AddDataset(name string, plans []dataframe.Plan, meta LoadMetadata) error {
	if name == "" {
		return fmt.Errorf("dataset name is empty")
	}
	if len(plans) == 0 {
		return fmt.Errorf("dataset %q: no plans", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets[name] = &Dataset{Name: name, Plans: plans, Meta: meta}
	if _, ok := e.recipes[name]; !ok {
		e.recipes[name] = nil
	}
	e.log.Info().Str("dataset", name).Int("plans", len(plans)).Msg("dataset registered")
	return nil
}

// RemoveDataset drops the dataset and its recipe.
func (e *Engine) RemoveDataset(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.datasets[name]; !ok {
		return false
	}
	delete(e.datasets, name)
	delete(e.recipes, name)
	return true
}

// RenameDataset moves the dataset and its recipe to a new name atomically.
func (e *Engine) RenameDataset(oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("new dataset name is empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, ok := e.datasets[oldName]
	if !ok {
		return fmt.Errorf("%q: %w", oldName, ErrDatasetNotFound)
	}
	if _, taken := e.datasets[newName]; taken {
		return fmt.Errorf("dataset %q already exists", newName)
	}
	delete(e.datasets, oldName)
	ds.Name = newName
	e.datasets[newName] = ds
	e.recipes[newName] = e.recipes[oldName]
	delete(e.recipes, oldName)
	return nil
}

// Dataset returns a copy of the named dataset record.
func (e *Engine) Dataset(name string) (Dataset, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ds, ok := e.datasets[name]
	if !ok {
		return Dataset{}, false
	}
	return Dataset{Name: ds.Name, Plans: append([]dataframe.Plan(nil), ds.Plans...), Meta: ds.Meta}, true
}

// Names lists registered datasets, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.datasets))
	for n := range e.datasets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Recipe returns a copy of the stored recipe for name.
func (e *Engine) Recipe(name string) []steps.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]steps.Step(nil), e.recipes[name]...)
}

// SetRecipe replaces the stored recipe for name.
func (e *Engine) SetRecipe(name string, recipe []steps.Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recipes[name] = append([]steps.Step(nil), recipe...)
}

// AppendStep adds one step to the stored recipe.
func (e *Engine) AppendStep(name string, step steps.Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recipes[name] = append(e.recipes[name], step)
}

// ClearRecipe empties the stored recipe but keeps the dataset.
func (e *Engine) ClearRecipe(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recipes[name] = nil
}

// Recipes snapshots all stored recipes.
func (e *Engine) Recipes() map[string][]steps.Step {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]steps.Step, len(e.recipes))
	for n, r := range e.recipes {
		out[n] = append([]steps.Step(nil), r...)
	}
	return out
}

// views snapshots every dataset as its combined plan, the read-only dataset
// map handed to step contexts.
func (e *Engine) views() map[string]dataframe.Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]dataframe.Plan, len(e.datasets))
	for n, ds := range e.datasets {
		out[n] = ds.Combined()
	}
	return out
}
