package pathvarplugin

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
	"github.com/alexisbeaulieu97/stratum/pkg/pathlist"
)

// pathVarPlugin appends segments to PATH-style variables tracked in the
// snapshot. Composition is append-only and de-duplicating: multiple steps
// extend the same variable without clobbering earlier segments.
type pathVarPlugin struct{}

// New creates a mutate-path-variable plugin instance.
func New() plugin.Plugin {
	return &pathVarPlugin{}
}

var _ plugin.Plugin = (*pathVarPlugin)(nil)

func (p *pathVarPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Kind:        config.KindPathVariable,
		Version:     "1.0.0",
		Description: "Appends segments to PATH-style environment variables.",
		Stateful:    false,
	}
}

func (p *pathVarPlugin) Schema() any {
	return config.PathVariableParams{}
}

func (p *pathVarPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, err
	}
	return []string{resourceKey(params.Variable)}, nil
}

func resourceKey(variable string) string {
	return "envvar:" + variable
}

type pathVarEvaluation struct {
	key     string
	current string
}

func (p *pathVarPlugin) Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	key := resourceKey(params.Variable)
	current, _ := snap.Get(key)
	internal := &pathVarEvaluation{key: key, current: current}

	if pathlist.OrderedAfter(current, params.Segment, params.After) {
		return &model.Evaluation{
			StepID:  step.ID,
			Status:  model.StatusSatisfied,
			Message: fmt.Sprintf("%s already contains %s", params.Variable, params.Segment),
		}, nil
	}

	if pathlist.Contains(current, params.Segment) {
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("%s contains %s before required segment %s", params.Variable, params.Segment, params.After),
			Diff:           fmt.Sprintf("Would move %s after %s", params.Segment, params.After),
			Internal:       internal,
		}, nil
	}

	return &model.Evaluation{
		StepID:         step.ID,
		Status:         model.StatusMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("%s does not contain %s", params.Variable, params.Segment),
		Diff:           fmt.Sprintf("Would append %s to %s", params.Segment, params.Variable),
		Internal:       internal,
	}, nil
}

func (p *pathVarPlugin) Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	internal, ok := eval.Internal.(*pathVarEvaluation)
	if !ok || internal == nil {
		return nil, stratumerrors.NewExecutionError(step.ID, fmt.Errorf("evaluation data missing for %s", step.ID))
	}

	segments := pathlist.Split(internal.current)
	if idx := pathlist.Index(segments, params.Segment); idx >= 0 {
		segments = append(segments[:idx], segments[idx+1:]...)
	}
	value := pathlist.Append(pathlist.Join(segments), params.Segment)

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("appended %s to %s", params.Segment, params.Variable),
		Changes: map[string]string{internal.key: value},
	}, nil
}

func loadParams(step *config.Step) (*config.PathVariableParams, error) {
	if step == nil {
		return nil, fmt.Errorf("step is nil")
	}
	params := &config.PathVariableParams{}
	if err := step.DecodeParams(params); err != nil {
		return nil, err
	}
	if params.Variable == "" || params.Segment == "" {
		return nil, fmt.Errorf("mutate-path-variable requires variable and segment")
	}
	return params, nil
}
