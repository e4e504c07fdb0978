// Package steps defines the transformation step model: the recipe step
// record, the per-execution context handed to step functions, and the
// write-once registry of step definitions.
package steps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dataprep/internal/dataframe"
)

// Step is one entry of a recipe. Params stay generic until the step's
// definition decodes them.
type Step struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Label  string         `json:"label,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Context carries cross-dataset state into a step function. Datasets is a
// read-only view of the base plans; ApplyRecipe runs another recipe through
// the engine so combine steps see transformed data, with the engine guarding
// recursion depth.
type Context struct {
	Datasets       map[string]dataframe.Plan
	ProjectRecipes map[string][]Step
	ApplyRecipe    func(ctx context.Context, plan dataframe.Plan, recipe []Step) (dataframe.Plan, error)
	Depth          int
}

// Definition describes one step type. NewParams returns a pointer to a fresh
// params struct for decoding; Apply transforms the plan.
type Definition struct {
	Type      string
	Label     string
	Group     string
	NewParams func() any
	Apply     func(ctx context.Context, plan dataframe.Plan, params any, tc *Context) (dataframe.Plan, error)
}

// Registry maps step types to definitions. Registration is idempotent: the
// first definition for a type wins, later ones are ignored.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def unless its type is already taken.
func (r *Registry) Register(def Definition) {
	if def.Type == "" || def.Apply == nil {
		panic(fmt.Sprintf("steps: invalid definition %+v", def))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Type]; ok {
		return
	}
	r.defs[def.Type] = def
	r.order = append(r.order, def.Type)
}

// Get looks up the definition for a step type.
func (r *Registry) Get(stepType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[stepType]
	return def, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
