package steps

import (
	"context"
	"strings"

	"dataprep/internal/dataframe"
)

type filterRowsParams struct {
	Col   string `json:"col" validate:"required"`
	Op    string `json:"op" validate:"required,oneof=eq ne gt lt ge le contains not_contains is_null not_null"`
	Value string `json:"value"`
}

type sortRowsParams struct {
	Col        string `json:"col" validate:"required"`
	Descending bool   `json:"descending"`
}

type deduplicateParams struct {
	Cols []string `json:"cols"`
}

type sliceRowsParams struct {
	Offset int `json:"offset" validate:"gte=0"`
	Length int `json:"length" validate:"required,gt=0"`
}

func registerRowSteps(r *Registry) {
	r.Register(Definition{
		Type: "filter_rows", Label: "Filter Rows", Group: "Rows",
		NewParams: func() any { return &filterRowsParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*filterRowsParams)
			return dataframe.FilterRows(plan, func(r dataframe.RowView) (bool, error) {
				return rowMatches(r.Get(p.Col), p.Op, p.Value), nil
			}), nil
		},
	})

	r.Register(Definition{
		Type: "sort_rows", Label: "Sort Rows", Group: "Rows",
		NewParams: func() any { return &sortRowsParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*sortRowsParams)
			return dataframe.Sort(plan, p.Col, p.Descending), nil
		},
	})

	r.Register(Definition{
		Type: "deduplicate", Label: "Deduplicate", Group: "Rows",
		NewParams: func() any { return &deduplicateParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*deduplicateParams)
			return dataframe.Distinct(plan, p.Cols), nil
		},
	})

	r.Register(Definition{
		Type: "slice_rows", Label: "Slice Rows", Group: "Rows",
		NewParams: func() any { return &sliceRowsParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*sliceRowsParams)
			return dataframe.Slice(plan, p.Offset, p.Length), nil
		},
	})

	r.Register(Definition{
		Type: "drop_empty_rows", Label: "Drop Empty Rows", Group: "Rows",
		NewParams: func() any { return &struct{}{} },
		Apply: func(_ context.Context, plan dataframe.Plan, _ any, _ *Context) (dataframe.Plan, error) {
			return dataframe.FilterRows(plan, func(r dataframe.RowView) (bool, error) {
				for _, c := range r.Columns() {
					v := r.Get(c)
					if v != nil && dataframe.ValueString(v) != "" {
						return true, nil
					}
				}
				return false, nil
			}), nil
		},
	})
}

// rowMatches implements the filter_rows comparison table. Ordering
// comparisons are numeric when both sides parse, string otherwise; contains
// is case-insensitive.
func rowMatches(v any, op, operand string) bool {
	switch op {
	case "is_null":
		return v == nil
	case "not_null":
		return v != nil
	}
	if v == nil {
		return false
	}
	s := dataframe.ValueString(v)
	switch op {
	case "eq":
		return s == operand
	case "ne":
		return s != operand
	case "contains":
		return strings.Contains(strings.ToLower(s), strings.ToLower(operand))
	case "not_contains":
		return !strings.Contains(strings.ToLower(s), strings.ToLower(operand))
	}
	c := dataframe.CompareValues(v, operand)
	switch op {
	case "gt":
		return c > 0
	case "lt":
		return c < 0
	case "ge":
		return c >= 0
	case "le":
		return c <= 0
	}
	return false
}
