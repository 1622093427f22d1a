// Package verifier re-checks every step postcondition against a snapshot
// without applying anything. It answers "does the environment still match
// the specification", telling resources that drifted apart from resources
// that were never provisioned in the first place.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/logger"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

// Verify evaluates each enabled step's postcondition, in declaration order,
// against the snapshot. It is strictly read-only: neither the snapshot nor
// the system is touched.
func Verify(ctx context.Context, spec *config.Spec, snap *snapshot.Snapshot, registry *plugin.Registry, log *logger.Logger) (*model.VerificationReport, error) {
	if spec == nil {
		return nil, stratumerrors.NewValidationError("spec", "specification is nil", nil)
	}
	if snap == nil {
		return nil, stratumerrors.NewValidationError("snapshot", "snapshot is nil", nil)
	}
	if registry == nil {
		return nil, stratumerrors.NewValidationError("registry", "plugin registry is nil", nil)
	}

	start := time.Now()
	report := &model.VerificationReport{RunID: snap.RunID()}

	for i := range spec.Steps {
		step := &spec.Steps[i]
		if !step.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, stratumerrors.NewExecutionError(step.ID, err)
		}

		result := verifyStep(ctx, step, snap, registry, log)
		report.Results = append(report.Results, result)
		report.Count(result)
	}

	report.Duration = time.Since(start)
	return report, nil
}

func verifyStep(ctx context.Context, step *config.Step, snap *snapshot.Snapshot, registry *plugin.Registry, log *logger.Logger) model.VerificationResult {
	start := time.Now()
	stepLog := log.WithStep(step.ID, step.Kind)

	result := model.VerificationResult{
		StepID:    step.ID,
		Kind:      step.Kind,
		Timestamp: time.Now(),
	}

	p, err := registry.Get(step.Kind)
	if err != nil {
		result.Status = model.StatusUnknown
		result.Detail = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	eval, err := p.Evaluate(ctx, step, snap)
	if err != nil {
		stepLog.Error(err, "postcondition check failed")
		result.Status = model.StatusUnknown
		result.Detail = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	switch eval.Status {
	case model.StatusSatisfied:
		result.Status = model.StatusSatisfied
		result.Holds = true
		result.Detail = eval.Message
	case model.StatusUnknown:
		result.Status = model.StatusUnknown
		result.Detail = eval.Message
	default:
		// A step that once applied but whose postcondition no longer holds
		// has drifted; one with no apply record was simply never attempted.
		if _, applied := snap.AppliedAt(step.ID); applied {
			result.Status = model.StatusDrifted
			result.Detail = fmt.Sprintf("drift detected: %s", eval.Message)
			stepLog.Warn(result.Detail)
		} else {
			result.Status = model.StatusMissing
			result.Detail = fmt.Sprintf("never attempted: %s", eval.Message)
			stepLog.Debug(result.Detail)
		}
	}

	result.Duration = time.Since(start)
	return result
}
