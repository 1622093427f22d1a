package permissionplugin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

type permissionPlugin struct{}

// New creates a set-permission plugin instance.
func New() plugin.Plugin {
	return &permissionPlugin{}
}

var _ plugin.Plugin = (*permissionPlugin)(nil)

func (p *permissionPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Kind:        config.KindSetPermission,
		Version:     "1.0.0",
		Description: "Sets file modes on provisioned paths.",
		Stateful:    true,
	}
}

func (p *permissionPlugin) Schema() any {
	return config.PermissionParams{}
}

func (p *permissionPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, err
	}
	return []string{resourceKey(params.Path)}, nil
}

func resourceKey(path string) string {
	return "perm:" + path
}

// normalizeMode renders a mode string in canonical zero-padded octal form.
func normalizeMode(mode string) (string, fs.FileMode, error) {
	parsed, err := strconv.ParseUint(strings.TrimPrefix(mode, "0"), 8, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid mode %q: %w", mode, err)
	}
	return fmt.Sprintf("%04o", parsed), fs.FileMode(parsed), nil
}

func (p *permissionPlugin) Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	want, _, err := normalizeMode(params.Mode)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	observed, ok := snap.Get(resourceKey(params.Path))
	switch {
	case !ok:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("mode for %s not set", params.Path),
			Diff:           fmt.Sprintf("Would chmod %s to %s", params.Path, want),
		}, nil
	case observed != want:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("%s has mode %s, want %s", params.Path, observed, want),
			Diff:           fmt.Sprintf("Would chmod %s to %s", params.Path, want),
		}, nil
	default:
		return &model.Evaluation{
			StepID:  step.ID,
			Status:  model.StatusSatisfied,
			Message: fmt.Sprintf("%s already has mode %s", params.Path, want),
		}, nil
	}
}

func (p *permissionPlugin) Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	params, err := loadParams(step)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	want, mode, err := normalizeMode(params.Mode)
	if err != nil {
		return nil, stratumerrors.NewValidationError(step.ID, err.Error(), err)
	}

	if chmodErr := chmod(params.Path, mode, params.Recursive); chmodErr != nil {
		// Permission and missing-path failures do not heal on retry.
		classified := stratumerrors.NewNonTransientError("set-permission", chmodErr)
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("failed to set mode on %s: %v", params.Path, chmodErr),
			Error:   classified,
		}, classified
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("set mode %s on %s", want, params.Path),
		Changes: map[string]string{resourceKey(params.Path): want},
	}, nil
}

func chmod(path string, mode fs.FileMode, recursive bool) error {
	if !recursive {
		return os.Chmod(path, mode)
	}
	return filepath.WalkDir(path, func(entry string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chmod(entry, mode)
	})
}

func loadParams(step *config.Step) (*config.PermissionParams, error) {
	if step == nil {
		return nil, fmt.Errorf("step is nil")
	}
	params := &config.PermissionParams{}
	if err := step.DecodeParams(params); err != nil {
		return nil, err
	}
	if params.Path == "" || params.Mode == "" {
		return nil, fmt.Errorf("set-permission requires path and mode")
	}
	return params, nil
}
