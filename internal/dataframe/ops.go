package dataframe

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Select projects the plan to exactly cols, in that order. Unknown columns
// are an error.
func Select(p Plan, cols []string) Plan { return &selectPlan{inner: p, cols: cols} }

type selectPlan struct {
	inner Plan
	cols  []string
}

func (p *selectPlan) Schema(ctx context.Context) ([]string, error) {
	in, err := p.inner.Schema(ctx)
	if err != nil {
		return nil, err
	}
	if missing := missingColumn(in, p.cols); missing != "" {
		return nil, &UnknownColumnError{Column: missing}
	}
	return append([]string(nil), p.cols...), nil
}

func (p *selectPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if missing := missingColumn(in.Columns(), p.cols); missing != "" {
		return nil, &UnknownColumnError{Column: missing}
	}
	out := NewFrame(p.cols)
	row := make([]any, len(p.cols))
	for i := 0; i < in.NumRows(); i++ {
		for j, c := range p.cols {
			row[j], _ = in.Value(i, c)
		}
		out.AppendRow(row)
	}
	return out, nil
}

// Drop removes cols from the plan. Columns the plan does not have are
// ignored.
func Drop(p Plan, cols []string) Plan { return &dropPlan{inner: p, cols: cols} }

type dropPlan struct {
	inner Plan
	cols  []string
}

func (p *dropPlan) kept(in []string) []string {
	dropped := make(map[string]struct{}, len(p.cols))
	for _, c := range p.cols {
		dropped[c] = struct{}{}
	}
	var kept []string
	for _, c := range in {
		if _, ok := dropped[c]; !ok {
			kept = append(kept, c)
		}
	}
	return kept
}

func (p *dropPlan) Schema(ctx context.Context) ([]string, error) {
	in, err := p.inner.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return p.kept(in), nil
}

func (p *dropPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return Select(FromFrame(in), p.kept(in.Columns())).Collect(ctx)
}

// Rename renames one column. Missing source or an already-taken target name
// is an error.
func Rename(p Plan, from, to string) Plan { return &renamePlan{inner: p, from: from, to: to} }

type renamePlan struct {
	inner    Plan
	from, to string
}

func (p *renamePlan) renamed(in []string) ([]string, error) {
	if p.from == p.to {
		return in, nil
	}
	found := false
	out := make([]string, len(in))
	for i, c := range in {
		if c == p.to {
			return nil, fmt.Errorf("rename %q: column %q already exists", p.from, p.to)
		}
		if c == p.from {
			found = true
			out[i] = p.to
		} else {
			out[i] = c
		}
	}
	if !found {
		return nil, &UnknownColumnError{Column: p.from}
	}
	return out, nil
}

func (p *renamePlan) Schema(ctx context.Context) ([]string, error) {
	in, err := p.inner.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return p.renamed(in)
}

func (p *renamePlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	cols, err := p.renamed(in.Columns())
	if err != nil {
		return nil, err
	}
	out := NewFrame(cols)
	for i := 0; i < in.NumRows(); i++ {
		out.AppendRow(in.Row(i))
	}
	return out, nil
}

// WithColumn adds or overwrites a column computed per row.
func WithColumn(p Plan, name string, fn func(RowView) (any, error)) Plan {
	return &withColumnPlan{inner: p, name: name, fn: fn}
}

type withColumnPlan struct {
	inner Plan
	name  string
	fn    func(RowView) (any, error)
}

func (p *withColumnPlan) cols(in []string) []string {
	for _, c := range in {
		if c == p.name {
			return in
		}
	}
	return append(append([]string(nil), in...), p.name)
}

func (p *withColumnPlan) Schema(ctx context.Context) ([]string, error) {
	in, err := p.inner.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return p.cols(in), nil
}

func (p *withColumnPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	cols := p.cols(in.Columns())
	ix := -1
	for i, c := range cols {
		if c == p.name {
			ix = i
		}
	}
	out := NewFrame(cols)
	row := make([]any, len(cols))
	for i := 0; i < in.NumRows(); i++ {
		copy(row, in.Row(i))
		v, err := p.fn(in.View(i))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", p.name, err)
		}
		row[ix] = v
		out.AppendRow(row)
	}
	return out, nil
}

// FilterRows keeps rows for which pred returns true.
func FilterRows(p Plan, pred func(RowView) (bool, error)) Plan {
	return &filterPlan{inner: p, pred: pred}
}

type filterPlan struct {
	inner Plan
	pred  func(RowView) (bool, error)
}

func (p *filterPlan) Schema(ctx context.Context) ([]string, error) { return p.inner.Schema(ctx) }

func (p *filterPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := NewFrame(in.Columns())
	for i := 0; i < in.NumRows(); i++ {
		keep, err := p.pred(in.View(i))
		if err != nil {
			return nil, err
		}
		if keep {
			out.AppendRow(in.Row(i))
		}
	}
	return out, nil
}

// Sort orders rows by one column, stable. Nulls sort last either direction.
func Sort(p Plan, col string, desc bool) Plan { return &sortPlan{inner: p, col: col, desc: desc} }

type sortPlan struct {
	inner Plan
	col   string
	desc  bool
}

func (p *sortPlan) Schema(ctx context.Context) ([]string, error) { return p.inner.Schema(ctx) }

func (p *sortPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if !in.HasColumn(p.col) {
		return nil, &UnknownColumnError{Column: p.col}
	}
	ix := make([]int, in.NumRows())
	for i := range ix {
		ix[i] = i
	}
	sort.SliceStable(ix, func(a, b int) bool {
		va, _ := in.Value(ix[a], p.col)
		vb, _ := in.Value(ix[b], p.col)
		if va == nil || vb == nil {
			// nulls last regardless of direction
			return vb == nil && va != nil
		}
		c := CompareValues(va, vb)
		if p.desc {
			return c > 0
		}
		return c < 0
	})
	out := NewFrame(in.Columns())
	for _, i := range ix {
		out.AppendRow(in.Row(i))
	}
	return out, nil
}

// Distinct keeps the first occurrence of each key, keyed by cols (all
// columns when empty).
func Distinct(p Plan, cols []string) Plan { return &distinctPlan{inner: p, cols: cols} }

type distinctPlan struct {
	inner Plan
	cols  []string
}

func (p *distinctPlan) Schema(ctx context.Context) ([]string, error) { return p.inner.Schema(ctx) }

func (p *distinctPlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := p.inner.Collect(ctx)
	if err != nil {
		return nil, err
	}
	keyCols := p.cols
	if len(keyCols) == 0 {
		keyCols = in.Columns()
	}
	if missing := missingColumn(in.Columns(), keyCols); missing != "" {
		return nil, &UnknownColumnError{Column: missing}
	}
	seen := make(map[string]struct{}, in.NumRows())
	out := NewFrame(in.Columns())
	for i := 0; i < in.NumRows(); i++ {
		k := rowKey(in, i, keyCols)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.AppendRow(in.Row(i))
	}
	return out, nil
}

// Slice keeps length rows starting at offset, clamped to the data.
func Slice(p Plan, offset, length int) Plan {
	return &slicePlan{inner: p, offset: offset, length: length}
}

type slicePlan struct {
	inner  Plan
	offset int
	length int
}

func (p *slicePlan) Schema(ctx context.Context) ([]string, error) { return p.inner.Schema(ctx) }

func (p *slicePlan) Collect(ctx context.Context) (*Frame, error) {
	in, err := collectUpTo(ctx, p.inner, p.offset+p.length)
	if err != nil {
		return nil, err
	}
	out := NewFrame(in.Columns())
	for i := p.offset; i < in.NumRows() && i < p.offset+p.length; i++ {
		out.AppendRow(in.Row(i))
	}
	return out, nil
}

func missingColumn(have, want []string) string {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; !ok {
			return c
		}
	}
	return ""
}

// rowKey builds a collision-safe key from the named columns. Unit separator
// keeps adjacent values apart; nil and "" stay distinct.
func rowKey(f *Frame, row int, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		v, _ := f.Value(row, c)
		if v == nil {
			b.WriteString("\x00")
		} else {
			b.WriteString(ValueString(v))
		}
		b.WriteString("\x1f")
	}
	return b.String()
}
