package dataframe

import (
	"context"
	"fmt"
)

// Plan is a lazy computation over tabular data. Schema is cheap where the
// node structure allows it; Collect materializes.
type Plan interface {
	Schema(ctx context.Context) ([]string, error)
	Collect(ctx context.Context) (*Frame, error)
}

// UnknownColumnError reports a reference to a column the plan does not have.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// limitedCollector is implemented by nodes that can stop producing rows
// early. Limit uses it to avoid reading whole files for previews.
type limitedCollector interface {
	collectN(ctx context.Context, n int) (*Frame, error)
}

// collectUpTo materializes at most n rows (n < 0 means all), pushing the
// bound into the node when it supports early exit.
func collectUpTo(ctx context.Context, p Plan, n int) (*Frame, error) {
	if n < 0 {
		return p.Collect(ctx)
	}
	if lc, ok := p.(limitedCollector); ok {
		return lc.collectN(ctx, n)
	}
	f, err := p.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if f.NumRows() <= n {
		return f, nil
	}
	out := NewFrame(f.Columns())
	for i := 0; i < n; i++ {
		out.AppendRow(f.Row(i))
	}
	return out, nil
}

// FromFrame wraps already-materialized data as a plan.
func FromFrame(f *Frame) Plan { return &framePlan{f: f} }

type framePlan struct {
	f *Frame
}

func (p *framePlan) Schema(context.Context) ([]string, error) { return p.f.Columns(), nil }

func (p *framePlan) Collect(context.Context) (*Frame, error) { return p.f, nil }

func (p *framePlan) collectN(_ context.Context, n int) (*Frame, error) {
	if p.f.NumRows() <= n {
		return p.f, nil
	}
	out := NewFrame(p.f.Columns())
	for i := 0; i < n; i++ {
		out.AppendRow(p.f.Row(i))
	}
	return out, nil
}

// Limit truncates the plan to at most n rows. Over a scan this stops reading
// the underlying file once n rows are decoded.
func Limit(p Plan, n int) Plan { return &limitPlan{inner: p, n: n} }

type limitPlan struct {
	inner Plan
	n     int
}

func (p *limitPlan) Schema(ctx context.Context) ([]string, error) { return p.inner.Schema(ctx) }

func (p *limitPlan) Collect(ctx context.Context) (*Frame, error) {
	return collectUpTo(ctx, p.inner, p.n)
}

func (p *limitPlan) collectN(ctx context.Context, n int) (*Frame, error) {
	if p.n < n {
		n = p.n
	}
	return collectUpTo(ctx, p.inner, n)
}
