package steps

import (
	"context"
	"fmt"

	"dataprep/internal/dataframe"
)

type joinDatasetParams struct {
	Dataset string   `json:"dataset" validate:"required"`
	LeftOn  []string `json:"left_on" validate:"required,min=1"`
	RightOn []string `json:"right_on" validate:"required,min=1"`
	How     string   `json:"how" validate:"omitempty,oneof=inner left"`
}

type concatDatasetsParams struct {
	Datasets []string `json:"datasets" validate:"required,min=1"`
}

func registerCombineSteps(r *Registry) {
	r.Register(Definition{
		Type: "join_dataset", Label: "Join Dataset", Group: "Combine",
		NewParams: func() any { return &joinDatasetParams{} },
		Apply: func(ctx context.Context, plan dataframe.Plan, params any, tc *Context) (dataframe.Plan, error) {
			p := params.(*joinDatasetParams)
			other, err := transformedView(ctx, tc, p.Dataset)
			if err != nil {
				return nil, err
			}
			how := p.How
			if how == "" {
				how = dataframe.JoinInner
			}
			return dataframe.Join(plan, other, p.LeftOn, p.RightOn, how), nil
		},
	})

	r.Register(Definition{
		Type: "concat_datasets", Label: "Append Datasets", Group: "Combine",
		NewParams: func() any { return &concatDatasetsParams{} },
		Apply: func(ctx context.Context, plan dataframe.Plan, params any, tc *Context) (dataframe.Plan, error) {
			p := params.(*concatDatasetsParams)
			plans := []dataframe.Plan{plan}
			for _, name := range p.Datasets {
				other, err := transformedView(ctx, tc, name)
				if err != nil {
					return nil, err
				}
				plans = append(plans, other)
			}
			return dataframe.Concat(plans), nil
		},
	})
}

// transformedView resolves another dataset through the execution context,
// running its own recipe first so combine steps always see prepared data.
func transformedView(ctx context.Context, tc *Context, name string) (dataframe.Plan, error) {
	if tc == nil {
		return nil, fmt.Errorf("dataset %q not available without execution context", name)
	}
	base, ok := tc.Datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q not registered", name)
	}
	recipe := tc.ProjectRecipes[name]
	if len(recipe) == 0 || tc.ApplyRecipe == nil {
		return base, nil
	}
	return tc.ApplyRecipe(ctx, base, recipe)
}
