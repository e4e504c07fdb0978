// Package source implements the loader plugins that bring data into the
// engine: files (CSV/NDJSON/workbooks), SQL queries, HTML tables and HTTP
// APIs. Loaders return one plan per source file plus load metadata the
// project serializer needs to re-create the load.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
	"dataprep/internal/steps"
)

// ErrUnknownKind marks load requests naming an unregistered loader.
var ErrUnknownKind = errors.New("unknown loader kind")

// Definition describes one loader kind, mirroring the sink registry.
type Definition struct {
	Kind      string
	Label     string
	NewParams func() any
	Load      func(ctx context.Context, params any) ([]dataframe.Plan, engine.LoadMetadata, error)
}

type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) {
	if def.Kind == "" || def.Load == nil {
		panic(fmt.Sprintf("source: invalid definition %+v", def))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Kind]; ok {
		return
	}
	r.defs[def.Kind] = def
}

func (r *Registry) Get(kind string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

// Run decodes raw params for the named loader and executes it.
func (r *Registry) Run(ctx context.Context, kind string, raw map[string]any) ([]dataframe.Plan, engine.LoadMetadata, error) {
	def, ok := r.Get(kind)
	if !ok {
		return nil, engine.LoadMetadata{}, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	params := def.NewParams()
	if err := steps.DecodeParams(raw, params); err != nil {
		return nil, engine.LoadMetadata{}, fmt.Errorf("loader %s: %w", kind, err)
	}
	plans, meta, err := def.Load(ctx, params)
	if err != nil {
		return nil, engine.LoadMetadata{}, err
	}
	meta.LoaderKind = kind
	if meta.LoaderParams == nil {
		meta.LoaderParams = paramsToMap(params)
	}
	return plans, meta, nil
}

// paramsToMap round-trips a params struct into the generic map stored in
// project files.
func paramsToMap(params any) map[string]any {
	b, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
