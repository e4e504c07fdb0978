package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dataprep/internal/dataframe"
)

type fillNullsParams struct {
	Cols  []string `json:"cols"`
	Value string   `json:"value" validate:"required"`
}

type dropNullsParams struct {
	Cols []string `json:"cols"`
}

type stringCaseParams struct {
	Col  string `json:"col" validate:"required"`
	Mode string `json:"mode" validate:"required,oneof=upper lower title trim"`
}

type stringReplaceParams struct {
	Col     string `json:"col" validate:"required"`
	Find    string `json:"find" validate:"required"`
	Replace string `json:"replace"`
	Regex   bool   `json:"regex"`
}

func registerCleanSteps(r *Registry) {
	r.Register(Definition{
		Type: "fill_nulls", Label: "Fill Nulls", Group: "Clean",
		NewParams: func() any { return &fillNullsParams{} },
		Apply: func(ctx context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*fillNullsParams)
			cols := p.Cols
			if len(cols) == 0 {
				sc, err := plan.Schema(ctx)
				if err != nil {
					return nil, err
				}
				cols = sc
			}
			for _, col := range cols {
				col := col
				plan = dataframe.WithColumn(plan, col, func(r dataframe.RowView) (any, error) {
					if v := r.Get(col); v != nil {
						return v, nil
					}
					return p.Value, nil
				})
			}
			return plan, nil
		},
	})

	r.Register(Definition{
		Type: "drop_nulls", Label: "Drop Nulls", Group: "Clean",
		NewParams: func() any { return &dropNullsParams{} },
		Apply: func(ctx context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*dropNullsParams)
			cols := p.Cols
			if len(cols) == 0 {
				sc, err := plan.Schema(ctx)
				if err != nil {
					return nil, err
				}
				cols = sc
			}
			return dataframe.FilterRows(plan, func(r dataframe.RowView) (bool, error) {
				for _, c := range cols {
					if r.Get(c) == nil {
						return false, nil
					}
				}
				return true, nil
			}), nil
		},
	})

	r.Register(Definition{
		Type: "string_case", Label: "Change Case", Group: "Clean",
		NewParams: func() any { return &stringCaseParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*stringCaseParams)
			titler := cases.Title(language.Und)
			return dataframe.WithColumn(plan, p.Col, func(r dataframe.RowView) (any, error) {
				v := r.Get(p.Col)
				if v == nil {
					return nil, nil
				}
				s := dataframe.ValueString(v)
				switch p.Mode {
				case "upper":
					return strings.ToUpper(s), nil
				case "lower":
					return strings.ToLower(s), nil
				case "title":
					return titler.String(s), nil
				case "trim":
					return strings.TrimSpace(s), nil
				}
				return s, nil
			}), nil
		},
	})

	r.Register(Definition{
		Type: "string_replace", Label: "Find & Replace", Group: "Clean",
		NewParams: func() any { return &stringReplaceParams{} },
		Apply: func(_ context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*stringReplaceParams)
			var re *regexp.Regexp
			if p.Regex {
				var err error
				re, err = regexp.Compile(p.Find)
				if err != nil {
					return nil, fmt.Errorf("compile pattern: %w", err)
				}
			}
			return dataframe.WithColumn(plan, p.Col, func(r dataframe.RowView) (any, error) {
				v := r.Get(p.Col)
				if v == nil {
					return nil, nil
				}
				s := dataframe.ValueString(v)
				if re != nil {
					return re.ReplaceAllString(s, p.Replace), nil
				}
				return strings.ReplaceAll(s, p.Find, p.Replace), nil
			}), nil
		},
	})
}
