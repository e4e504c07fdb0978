package steps

import (
	"context"
	"math"

	"dataprep/internal/dataframe"
)

type selectColsParams struct {
	Cols []string `json:"cols" validate:"required,min=1,dive,required"`
}

type dropColsParams struct {
	Cols []string `json:"cols" validate:"required,min=1"`
}

type renameColParams struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type addColParams struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

type cleanCastParams struct {
	Cols []string `json:"cols" validate:"required,min=1"`
	To   string   `json:"to" validate:"required,oneof=string number int"`
}

type addRowNumberParams struct {
	Name string `json:"name"`
}

func registerColumnSteps(r *Registry) {
	r.Register(Definition{
		Type: "select_cols", Label: "Select Columns", Group: "Columns",
		NewParams: func() any { return &selectColsParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*selectColsParams)
			return dataframe.Select(plan, p.Cols), nil
		},
	})

	r.Register(Definition{
		Type: "drop_cols", Label: "Drop Columns", Group: "Columns",
		NewParams: func() any { return &dropColsParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*dropColsParams)
			return dataframe.Drop(plan, p.Cols), nil
		},
	})

	r.Register(Definition{
		Type: "rename_col", Label: "Rename Column", Group: "Columns",
		NewParams: func() any { return &renameColParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*renameColParams)
			return dataframe.Rename(plan, p.From, p.To), nil
		},
	})

	r.Register(Definition{
		Type: "add_col", Label: "Add Column", Group: "Columns",
		NewParams: func() any { return &addColParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*addColParams)
			return dataframe.WithColumn(plan, p.Name, func(dataframe.RowView) (any, error) {
				return p.Value, nil
			}), nil
		},
	})

	r.Register(Definition{
		Type: "clean_cast", Label: "Cast Columns", Group: "Columns",
		NewParams: func() any { return &cleanCastParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*cleanCastParams)
			for _, col := range p.Cols {
				col := col
				plan = dataframe.WithColumn(plan, col, func(r dataframe.RowView) (any, error) {
					return castValue(r.Get(col), p.To), nil
				})
			}
			return plan, nil
		},
	})

	r.Register(Definition{
		Type: "add_row_number", Label: "Add Row Number", Group: "Columns",
		NewParams: func() any { return &addRowNumberParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*addRowNumberParams)
			name := p.Name
			if name == "" {
				name = "row_nr"
			}
			return dataframe.WithColumn(plan, name, func(r dataframe.RowView) (any, error) {
				return int64(r.Index() + 1), nil
			}), nil
		},
	})
}

// castValue converts a cell, yielding null when the value does not parse.
func castValue(v any, to string) any {
	if v == nil {
		return nil
	}
	switch to {
	case "string":
		return dataframe.ValueString(v)
	case "number":
		f, ok := dataframe.ValueFloat(v)
		if !ok {
			return nil
		}
		return f
	case "int":
		f, ok := dataframe.ValueFloat(v)
		if !ok {
			return nil
		}
		return int64(math.Trunc(f))
	}
	return v
}
