// Package sink holds the exporter registry and the built-in sink writers.
// A sink takes one transformed plan per source (usually one total) and
// persists the collected rows.
package sink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"dataprep/internal/dataframe"
	"dataprep/internal/steps"
)

// Spec is the wire form of an export request: a sink kind plus its generic
// params, decoded against the definition's params struct.
type Spec struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// WriteResult reports what a sink produced.
type WriteResult struct {
	Files        []string
	BytesWritten int64
	Rows         int64
}

// ErrUnknownKind marks export requests naming an unregistered sink.
var ErrUnknownKind = errors.New("unknown sink kind")

// InvalidConfigError reports sink params that failed decoding or validation.
type InvalidConfigError struct {
	Kind string
	Err  error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("sink %s: invalid config: %v", e.Kind, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// Definition describes one sink kind.
type Definition struct {
	Kind      string
	Label     string
	NewParams func() any
	Write     func(ctx context.Context, plans []dataframe.Plan, params any) (WriteResult, error)
}

// Registry maps sink kinds to definitions; first registration wins, same as
// the step registry.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) {
	if def.Kind == "" || def.Write == nil {
		panic(fmt.Sprintf("sink: invalid definition %+v", def))
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

// Kinds returns the registered kinds, unsorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	return out
}

// Resolve validates spec synchronously: the definition and its decoded
// params, or the error a job submission must fail with before it is queued.
func (r *Registry) Resolve(spec Spec) (Definition, any, error) {
	def, ok := r.Get(spec.Kind)
	if !ok {
		return Definition{}, nil, fmt.Errorf("%q: %w", spec.Kind, ErrUnknownKind)
	}
	params := def.NewParams()
	if err := steps.DecodeParams(spec.Params, params); err != nil {
		return Definition{}, nil, &InvalidConfigError{Kind: spec.Kind, Err: err}
	}
	return def, params, nil
}

// partPath derives the per-source output path for multi-plan exports:
// out.csv, part 2 of n -> out_002.csv.
func partPath(path string, part, total int) string {
	if total <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%03d%s", stem, part+1, ext)
}
