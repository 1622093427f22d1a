package config

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	versionPattern  = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?$`)
	stepIDPattern   = regexp.MustCompile(`^[a-z0-9_]+$`)
	fileModePattern = regexp.MustCompile(`^0?[0-7]{3,4}$`)

	kindSet = func() map[string]struct{} {
		set := make(map[string]struct{}, len(Kinds))
		for _, k := range Kinds {
			set[k] = struct{}{}
		}
		return set
	}()
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("spec_version", func(fl validator.FieldLevel) bool {
			return versionPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("file_mode", func(fl validator.FieldLevel) bool {
			return fileModePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateSpec performs schema and cross-step validation on a specification.
func ValidateSpec(spec *Spec) error {
	if spec == nil {
		return stratumerrors.NewValidationError("spec", "specification is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(spec); err != nil {
		return convertValidationError(err)
	}

	index := make(map[string]struct{}, len(spec.Steps))
	for i := range spec.Steps {
		step := &spec.Steps[i]

		if _, exists := index[step.ID]; exists {
			return stratumerrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}
		index[step.ID] = struct{}{}

		if _, known := kindSet[step.Kind]; !known {
			return stratumerrors.NewValidationError(fieldForStep(i, "kind"), fmt.Sprintf("unsupported kind %q", step.Kind), nil)
		}

		params, err := step.Params()
		if err != nil {
			return stratumerrors.NewValidationError(fieldForStep(i, "params"), err.Error(), err)
		}
		if err := v.Struct(params); err != nil {
			return stratumerrors.NewValidationError(fieldForStep(i, "params"), fmt.Sprintf("invalid %s parameters: %v", step.Kind, err), err)
		}
	}

	// Prerequisites must resolve within the same specification; the graph
	// builder re-checks this for callers that bypass parsing.
	for i := range spec.Steps {
		step := &spec.Steps[i]
		for _, dep := range step.DependsOn {
			if _, ok := index[dep]; !ok {
				return stratumerrors.NewUnknownPrerequisiteError(step.ID, dep)
			}
		}
	}

	return nil
}

func convertValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		first := errs[0]
		return stratumerrors.NewValidationError(first.Namespace(), fmt.Sprintf("failed %q constraint", first.Tag()), err)
	}
	return stratumerrors.NewValidationError("spec", err.Error(), err)
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
