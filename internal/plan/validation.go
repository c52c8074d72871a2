package plan

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

// Validate checks a StepInput against the field rules of a step.
func (s *StepInput) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("step title is required")
	}
	if strings.TrimSpace(s.Description) == "" {
		return fmt.Errorf("step description is required")
	}
	if s.Order < 0 {
		return fmt.Errorf("step order must be a non-negative integer, got %d", s.Order)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("invalid step type %q", s.Type)
	}
	for i, m := range s.Modules {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("module reference at index %d is empty", i)
		}
	}
	return nil
}

// Validate checks a CreateInput. Failures are ValidationErrors.
func (in *CreateInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.NewValidationError("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return errors.NewValidationError("description is required")
	}
	return validateSteps(in.Steps)
}

// Validate checks the fields present in a Patch.
func (p *Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.NewValidationError("title must not be empty")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return errors.NewValidationError("description must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return errors.NewValidationError(fmt.Sprintf("invalid status %q", *p.Status))
	}
	if p.Steps != nil {
		return validateSteps(*p.Steps)
	}
	return nil
}

func validateSteps(steps []StepInput) error {
	seen := make(map[int]int, len(steps))
	for i := range steps {
		if err := steps[i].Validate(); err != nil {
			return errors.NewValidationError(fmt.Sprintf("step at index %d is invalid: %v", i, err))
		}
		if prev, dup := seen[steps[i].Order]; dup {
			return errors.NewValidationError(
				fmt.Sprintf("steps at index %d and %d share order %d", prev, i, steps[i].Order)).
				WithSuggestion("Give every step a distinct order value")
		}
		seen[steps[i].Order] = i
	}
	return nil
}
