// Package dataframe implements the lazy plan engine the pipeline runs on:
// an in-memory columnar-ish frame plus composable plan nodes over it. Plans
// are cheap to build and only touch data on Collect; Schema answers without
// materializing wherever the node allows it.
package dataframe

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame holds materialized data: an ordered column list and rows of values.
// nil means null. Values are whatever the scan produced, strings for CSV,
// decoded JSON scalars for NDJSON.
type Frame struct {
	cols  []string
	index map[string]int
	rows  [][]any
}

func NewFrame(cols []string) *Frame {
	f := &Frame{cols: append([]string(nil), cols...)}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.cols))
	for i, c := range f.cols {
		f.index[c] = i
	}
}

// Columns returns the column names in order. Callers must not mutate.
func (f *Frame) Columns() []string { return f.cols }

func (f *Frame) NumRows() int { return len(f.rows) }

func (f *Frame) HasColumn(col string) bool {
	_, ok := f.index[col]
	return ok
}

// AppendRow adds a row, padded or truncated to the column count.
func (f *Frame) AppendRow(vals []any) {
	row := make([]any, len(f.cols))
	copy(row, vals)
	f.rows = append(f.rows, row)
}

// Row returns the backing slice for row i. Callers must not mutate.
func (f *Frame) Row(i int) []any { return f.rows[i] }

// Value returns the value at (row, col); ok is false for unknown columns.
func (f *Frame) Value(row int, col string) (any, bool) {
	ix, ok := f.index[col]
	if !ok {
		return nil, false
	}
	return f.rows[row][ix], true
}

// View wraps row i for per-row callbacks.
func (f *Frame) View(i int) RowView { return RowView{f: f, i: i} }

// RowView is a cheap handle on one frame row.
type RowView struct {
	f *Frame
	i int
}

// Get returns the named value, nil when the column does not exist.
func (r RowView) Get(col string) any {
	v, _ := r.f.Value(r.i, col)
	return v
}

func (r RowView) Index() int { return r.i }

func (r RowView) Columns() []string { return r.f.cols }

// ValueString renders a cell for display, hashing and key building.
// nil renders empty.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// ValueFloat attempts a numeric reading of a cell.
func ValueFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// CompareValues orders two cells: nulls sort last, numbers numerically when
// both sides parse, strings lexically otherwise.
func CompareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := ValueFloat(a); ok {
		if fb, ok := ValueFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(ValueString(a), ValueString(b))
}
