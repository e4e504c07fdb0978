package engine

import (
	"context"
	"fmt"

	"dataprep/internal/dataframe"
	"dataprep/internal/steps"
)

// MaxApplyDepth bounds how deep dataset references (join_dataset,
// concat_datasets) may chain before the fold gives up. Cyclic recipes hit
// this instead of overflowing the stack.
const MaxApplyDepth = 16

// ApplyStep resolves, decodes and runs one step against plan.
func (e *Engine) ApplyStep(ctx context.Context, plan dataframe.Plan, step steps.Step) (dataframe.Plan, error) {
	return e.applyStep(ctx, plan, step, 0)
}

func (e *Engine) applyStep(ctx context.Context, plan dataframe.Plan, step steps.Step, depth int) (dataframe.Plan, error) {
	def, ok := e.registry.Get(step.Type)
	if !ok {
		return nil, &UnknownStepTypeError{StepID: step.ID, StepType: step.Type}
	}
	params := def.NewParams()
	if err := steps.DecodeParams(step.Params, params); err != nil {
		return nil, &InvalidStepParamsError{StepID: step.ID, StepType: step.Type, Err: err}
	}

	tc := &steps.Context{
		Datasets:       e.views(),
		ProjectRecipes: e.Recipes(),
		Depth:          depth,
		ApplyRecipe: func(ctx context.Context, plan dataframe.Plan, recipe []steps.Step) (dataframe.Plan, error) {
			return e.applyRecipe(ctx, plan, recipe, depth+1)
		},
	}

	out, err := def.Apply(ctx, plan, params, tc)
	if err != nil {
		return nil, &StepError{StepID: step.ID, StepType: step.Type, Err: err}
	}
	return out, nil
}

// ApplyRecipe folds the recipe over plan in order. The returned plan is
// still lazy; errors identify the failing step.
func (e *Engine) ApplyRecipe(ctx context.Context, plan dataframe.Plan, recipe []steps.Step) (dataframe.Plan, error) {
	return e.applyRecipe(ctx, plan, recipe, 0)
}

func (e *Engine) applyRecipe(ctx context.Context, plan dataframe.Plan, recipe []steps.Step, depth int) (dataframe.Plan, error) {
	if depth > MaxApplyDepth {
		return nil, fmt.Errorf("depth %d: %w", depth, ErrApplyDepthExceeded)
	}
	var err error
	for _, step := range recipe {
		plan, err = e.applyStep(ctx, plan, step, depth)
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// recipeFor returns the caller's recipe when given, the stored one
// otherwise.
func (e *Engine) recipeFor(name string, override []steps.Step) []steps.Step {
	if override != nil {
		return override
	}
	return e.Recipe(name)
}

// Preview materializes up to limit rows for interactive display. The limit
// is pushed below the recipe, so the fold runs on a truncated scan of the
// first source plan: fast, and a deliberate approximation for recipes whose
// aggregate view depends on rows beyond the window.
func (e *Engine) Preview(ctx context.Context, name string, recipe []steps.Step, limit int) (*dataframe.Frame, error) {
	ds, ok := e.Dataset(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	if limit <= 0 {
		limit = 500
	}
	base := dataframe.Limit(ds.Plans[0], limit)
	plan, err := e.applyRecipe(ctx, base, e.recipeFor(name, recipe), 0)
	if err != nil {
		return nil, err
	}
	return dataframe.Limit(plan, limit).Collect(ctx)
}

// ExportPlan builds the full transformed plan. Per-file datasets get the
// recipe applied to each source plan independently, diagonally concatenated.
func (e *Engine) ExportPlan(ctx context.Context, name string, recipe []steps.Step) (dataframe.Plan, error) {
	plans, err := e.ExportPlans(ctx, name, recipe)
	if err != nil {
		return nil, err
	}
	if len(plans) == 1 {
		return plans[0], nil
	}
	return dataframe.Concat(plans), nil
}

// ExportPlans builds the transformed plan list: one entry per source file in
// per-file mode, a single entry otherwise.
func (e *Engine) ExportPlans(ctx context.Context, name string, recipe []steps.Step) ([]dataframe.Plan, error) {
	ds, ok := e.Dataset(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	rec := e.recipeFor(name, recipe)

	if ds.Meta.PerFile && len(ds.Plans) > 1 {
		out := make([]dataframe.Plan, 0, len(ds.Plans))
		for i, p := range ds.Plans {
			tp, err := e.applyRecipe(ctx, p, rec, 0)
			if err != nil {
				return nil, fmt.Errorf("source %d: %w", i, err)
			}
			out = append(out, tp)
		}
		return out, nil
	}

	plan, err := e.applyRecipe(ctx, ds.Combined(), rec, 0)
	if err != nil {
		return nil, err
	}
	return []dataframe.Plan{plan}, nil
}

// TransformedSchema returns the recipe's output schema for UI population,
// degrading to the base schema when the recipe cannot run.
func (e *Engine) TransformedSchema(ctx context.Context, name string, recipe []steps.Step) ([]string, error) {
	ds, ok := e.Dataset(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	base := ds.Combined()
	plan, err := e.applyRecipe(ctx, base, e.recipeFor(name, recipe), 0)
	if err == nil {
		if sc, serr := plan.Schema(ctx); serr == nil {
			return sc, nil
		}
	}
	e.log.Debug().Str("dataset", name).Err(err).Msg("transformed schema fell back to base schema")
	return base.Schema(ctx)
}

// Materialize runs the recipe to completion and registers the result as a
// new dataset with an empty recipe.
func (e *Engine) Materialize(ctx context.Context, name, newName string, recipe []steps.Step) error {
	plan, err := e.ExportPlan(ctx, name, recipe)
	if err != nil {
		return err
	}
	f, err := plan.Collect(ctx)
	if err != nil {
		return err
	}
	if err := e.AddDataset(newName, []dataframe.Plan{dataframe.FromFrame(f)}, LoadMetadata{
		LoaderKind: "derived",
	}); err != nil {
		return err
	}
	// the recipe is baked into the data now
	e.SetRecipe(newName, nil)
	return nil
}
