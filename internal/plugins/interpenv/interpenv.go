package interpenvplugin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/plugins/internalexec"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

const defaultManager = "conda"

type interpEnvPlugin struct {
	runner internalexec.Runner
}

// New creates a create-interpreter-env plugin backed by conda or venv.
func New() plugin.Plugin {
	return &interpEnvPlugin{runner: internalexec.System()}
}

var _ plugin.Plugin = (*interpEnvPlugin)(nil)

func (p *interpEnvPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Kind:        config.KindInterpreterEnv,
		Version:     "1.0.0",
		Description: "Ensures a named Python interpreter environment exists at the requested version.",
		Stateful:    true,
	}
}

func (p *interpEnvPlugin) Schema() any {
	return config.InterpreterEnvParams{}
}

func (p *interpEnvPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, err
	}
	return []string{resourceKey(params.EnvName)}, nil
}

func resourceKey(envName string) string {
	return fmt.Sprintf("env:%s:python-version", envName)
}

func (p *interpEnvPlugin) Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	key := resourceKey(params.EnvName)
	observed, ok := snap.Get(key)

	switch {
	case !ok:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("environment %q does not exist", params.EnvName),
			Diff:           fmt.Sprintf("Would create %s with python %s", params.EnvName, params.PythonVersion),
		}, nil
	case observed != params.PythonVersion:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("environment %q has python %s, want %s", params.EnvName, observed, params.PythonVersion),
			Diff:           fmt.Sprintf("Would recreate %s with python %s", params.EnvName, params.PythonVersion),
		}, nil
	default:
		return &model.Evaluation{
			StepID:  step.ID,
			Status:  model.StatusSatisfied,
			Message: fmt.Sprintf("environment %q already has python %s", params.EnvName, params.PythonVersion),
		}, nil
	}
}

func (p *interpEnvPlugin) Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	manager := params.Manager
	if manager == "" {
		manager = defaultManager
	}

	name, args := createCommand(manager, params)
	out, runErr := p.runner.Run(ctx, name, args...)
	if runErr != nil {
		classified := classify(runErr, out)
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("failed to create environment %q: %v", params.EnvName, runErr),
			Error:   classified,
		}, classified
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("created environment %q with python %s", params.EnvName, params.PythonVersion),
		Changes: map[string]string{resourceKey(params.EnvName): params.PythonVersion},
	}, nil
}

func createCommand(manager string, params *config.InterpreterEnvParams) (string, []string) {
	if manager == "venv" {
		binary := "python" + params.PythonVersion
		return binary, []string{"-m", "venv", params.EnvName}
	}
	return "conda", []string{"create", "-y", "-n", params.EnvName, "python=" + params.PythonVersion}
}

func classify(err error, out string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stratumerrors.NewTransientError("create-interpreter-env", err)
	}

	lowered := strings.ToLower(out)
	for _, marker := range []string{"timeout", "timed out", "connection reset", "temporary failure", "could not resolve"} {
		if strings.Contains(lowered, marker) {
			return stratumerrors.NewTransientError("create-interpreter-env", fmt.Errorf("%w: %s", err, out))
		}
	}

	if out != "" {
		return stratumerrors.NewNonTransientError("create-interpreter-env", fmt.Errorf("%w: %s", err, out))
	}
	return stratumerrors.NewNonTransientError("create-interpreter-env", err)
}

func loadParams(step *config.Step) (*config.InterpreterEnvParams, error) {
	if step == nil {
		return nil, fmt.Errorf("step is nil")
	}
	params := &config.InterpreterEnvParams{}
	if err := step.DecodeParams(params); err != nil {
		return nil, err
	}
	if params.EnvName == "" || params.PythonVersion == "" {
		return nil, fmt.Errorf("create-interpreter-env requires env_name and python_version")
	}
	return params, nil
}
