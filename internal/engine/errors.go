package engine

import (
	"errors"
	"fmt"
)

// ErrDatasetNotFound marks references to unregistered datasets. Wrapped with
// the dataset name at every return site.
var ErrDatasetNotFound = errors.New("dataset not found")

// ErrApplyDepthExceeded marks a recipe chain that recursed through dataset
// references past the depth guard.
var ErrApplyDepthExceeded = errors.New("recipe reference depth exceeded")

// UnknownStepTypeError reports a recipe step whose type has no registered
// definition.
type UnknownStepTypeError struct {
	StepID   string
	StepType string
}

func (e *UnknownStepTypeError) Error() string {
	return fmt.Sprintf("step %s: unknown step type %q", e.StepID, e.StepType)
}

// InvalidStepParamsError reports a step whose params failed decoding or
// validation.
type InvalidStepParamsError struct {
	StepID   string
	StepType string
	Err      error
}

func (e *InvalidStepParamsError) Error() string {
	return fmt.Sprintf("step %s (%s): invalid params: %v", e.StepID, e.StepType, e.Err)
}

func (e *InvalidStepParamsError) Unwrap() error { return e.Err }

// StepError attributes a transform failure to the step that raised it.
type StepError struct {
	StepID   string
	StepType string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.StepType, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
