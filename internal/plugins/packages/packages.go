package packagesplugin

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

// installedMarker records presence for packages installed without a pin.
const installedMarker = "installed"

type packagesPlugin struct {
	runner internalexec.Runner
}

// New creates an install-package plugin backed by the system package
// managers.
func New() plugin.Plugin {
	return &packagesPlugin{runner: internalexec.System()}
}

var _ plugin.Plugin = (*packagesPlugin)(nil)

func (p *packagesPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Kind:        config.KindInstallPackage,
		Version:     "1.0.0",
		Description: "Installs packages through apt, conda, or pip.",
		Stateful:    true,
	}
}

func (p *packagesPlugin) Schema() any {
	return config.PackageParams{}
}

func (p *packagesPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(params.Packages))
	for _, entry := range params.Packages {
		name, _ := splitEntry(entry)
		keys = append(keys, resourceKey(name))
	}
	return keys, nil
}

func resourceKey(name string) string {
	return "pkg:" + name
}

// splitEntry separates a name@version pin; the version is empty when the
// entry is unpinned.
func splitEntry(entry string) (string, string) {
	if idx := strings.LastIndex(entry, "@"); idx > 0 {
		return entry[:idx], entry[idx+1:]
	}
	return entry, ""
}

type packagesEvaluation struct {
	missing []string
}

func (p *packagesPlugin) Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	var missing []string
	var drifted []string
	for _, entry := range params.Packages {
		name, version := splitEntry(entry)
		observed, ok := snap.Get(resourceKey(name))
		switch {
		case !ok:
			missing = append(missing, entry)
		case version != "" && observed != version:
			drifted = append(drifted, fmt.Sprintf("%s (have %s, want %s)", name, observed, version))
			missing = append(missing, entry)
		}
	}

	if len(missing) == 0 {
		return &model.Evaluation{
			StepID:  step.ID,
			Status:  model.StatusSatisfied,
			Message: fmt.Sprintf("all packages present: %s", strings.Join(params.Packages, ", ")),
		}, nil
	}

	status := model.StatusMissing
	message := fmt.Sprintf("packages not installed: %s", strings.Join(missing, ", "))
	if len(drifted) > 0 {
		status = model.StatusDrifted
		message = fmt.Sprintf("packages at wrong version: %s", strings.Join(drifted, ", "))
	}

	return &model.Evaluation{
		StepID:         step.ID,
		Status:         status,
		RequiresAction: true,
		Message:        message,
		Diff:           fmt.Sprintf("Would install: %s", strings.Join(missing, ", ")),
		Internal:       &packagesEvaluation{missing: missing},
	}, nil
}

func (p *packagesPlugin) Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	internal, ok := eval.Internal.(*packagesEvaluation)
	if !ok || internal == nil {
		return nil, stratumerrors.NewExecutionError(step.ID, fmt.Errorf("evaluation data missing for %s", step.ID))
	}

	manager := params.Manager
	if manager == "" {
		manager = defaultManager
	}

	name, args := installCommand(manager, params.Channel, internal.missing)
	out, runErr := p.runner.Run(ctx, name, args...)
	if runErr != nil {
		classified := classify(runErr, out)
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("%s install failed: %v", manager, runErr),
			Error:   classified,
		}, classified
	}

	changes := make(map[string]string, len(internal.missing))
	for _, entry := range internal.missing {
		pkgName, version := splitEntry(entry)
		if version == "" {
			version = installedMarker
		}
		changes[resourceKey(pkgName)] = version
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("installed packages: %s", strings.Join(internal.missing, ", ")),
		Changes: changes,
	}, nil
}

func installCommand(manager, channel string, entries []string) (string, []string) {
	switch manager {
	case "apt":
		args := []string{"install", "-y"}
		for _, entry := range entries {
			name, version := splitEntry(entry)
			if version != "" {
				args = append(args, name+"="+version)
			} else {
				args = append(args, name)
			}
		}
		return "apt-get", args
	case "pip":
		args := []string{"install"}
		for _, entry := range entries {
			name, version := splitEntry(entry)
			if version != "" {
				args = append(args, name+"=="+version)
			} else {
				args = append(args, name)
			}
		}
		return "pip", args
	default:
		args := []string{"install", "-y"}
		if channel != "" {
			args = append(args, "-c", channel)
		}
		for _, entry := range entries {
			name, version := splitEntry(entry)
			if version != "" {
				args = append(args, name+"="+version)
			} else {
				args = append(args, name)
			}
		}
		return "conda", args
	}
}

// classify sorts manager failures into retryable and permanent classes.
// Package managers exit non-zero for both network hiccups and genuine
// errors, so the combined output decides.
func classify(err error, out string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return stratumerrors.NewTransientError("install-package", err)
	}

	lowered := strings.ToLower(out)
	for _, marker := range []string{"timeout", "timed out", "temporary failure", "connection reset", "could not resolve"} {
		if strings.Contains(lowered, marker) {
			return stratumerrors.NewTransientError("install-package", fmt.Errorf("%w: %s", err, out))
		}
	}

	if out != "" {
		return stratumerrors.NewNonTransientError("install-package", fmt.Errorf("%w: %s", err, out))
	}
	return stratumerrors.NewNonTransientError("install-package", err)
}

func loadParams(step *config.Step) (*config.PackageParams, error) {
	if step == nil {
		return nil, fmt.Errorf("step is nil")
	}
	params := &config.PackageParams{}
	if err := step.DecodeParams(params); err != nil {
		return nil, err
	}
	if len(params.Packages) == 0 {
		return nil, fmt.Errorf("install-package requires at least one package")
	}
	return params, nil
}
