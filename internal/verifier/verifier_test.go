package verifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
)

// keyPlugin holds postcondition "the step's resource key is present with the
// expected value".
type keyPlugin struct {
	kind string
}

func (p *keyPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{Kind: p.kind, Version: "0.0.0", Description: "test double"}
}

func (p *keyPlugin) Schema() any { return nil }

func (p *keyPlugin) ResourceKeys(step *config.Step) ([]string, error) {
	return []string{"res:" + step.ID}, nil
}

func (p *keyPlugin) Evaluate(_ context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	key := "res:" + step.ID
	value, ok := snap.Get(key)
	switch {
	case !ok:
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("%s absent", key),
		}, nil
	case value != "expected":
		return &model.Evaluation{
			StepID:         step.ID,
			Status:         model.StatusDrifted,
			RequiresAction: true,
			Message:        fmt.Sprintf("%s holds %q, want %q", key, value, "expected"),
		}, nil
	default:
		return &model.Evaluation{StepID: step.ID, Status: model.StatusSatisfied, Message: "present"}, nil
	}
}

func (p *keyPlugin) Apply(context.Context, *model.Evaluation, *config.Step) (*model.StepResult, error) {
	return nil, fmt.Errorf("verification never applies")
}

func verifySpec(steps ...config.Step) *config.Spec {
	return &config.Spec{Version: "1.0", Name: "verify-test", Steps: steps}
}

func verifyStepDef(id string) config.Step {
	return config.Step{ID: id, Kind: config.KindInstallPackage, Enabled: true}
}

func newVerifyRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(&keyPlugin{kind: config.KindInstallPackage}))
	return registry
}

func TestVerifyAllSatisfied(t *testing.T) {
	t.Parallel()

	snap := snapshot.New()
	snap.Merge("a", map[string]string{"res:a": "expected"})
	snap.Merge("b", map[string]string{"res:b": "expected"})

	report, err := Verify(context.Background(), verifySpec(verifyStepDef("a"), verifyStepDef("b")), snap, newVerifyRegistry(t), nil)
	require.NoError(t, err)
	require.True(t, report.Ok())
	require.Equal(t, 2, report.Satisfied)
	require.Zero(t, report.Missing)
	require.Zero(t, report.Drifted)
}

func TestVerifyDistinguishesDriftFromNeverAttempted(t *testing.T) {
	t.Parallel()

	snap := snapshot.New()
	// "a" applied but its value no longer matches: drift.
	snap.Merge("a", map[string]string{"res:a": "tampered"})
	// "b" has no apply record at all.

	report, err := Verify(context.Background(), verifySpec(verifyStepDef("a"), verifyStepDef("b")), snap, newVerifyRegistry(t), nil)
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Equal(t, 1, report.Drifted)
	require.Equal(t, 1, report.Missing)

	require.Len(t, report.Results, 2)
	require.Equal(t, model.StatusDrifted, report.Results[0].Status)
	require.Contains(t, report.Results[0].Detail, "drift detected")
	require.Equal(t, model.StatusMissing, report.Results[1].Status)
	require.Contains(t, report.Results[1].Detail, "never attempted")
}

func TestVerifySkipsDisabledSteps(t *testing.T) {
	t.Parallel()

	disabled := verifyStepDef("off")
	disabled.Enabled = false

	report, err := Verify(context.Background(), verifySpec(disabled), snapshot.New(), newVerifyRegistry(t), nil)
	require.NoError(t, err)
	require.Empty(t, report.Results)
	require.True(t, report.Ok())
}

func TestVerifyUnknownKind(t *testing.T) {
	t.Parallel()

	step := config.Step{ID: "odd", Kind: config.KindFetchArtifact, Enabled: true}

	report, err := Verify(context.Background(), verifySpec(step), snapshot.New(), newVerifyRegistry(t), nil)
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Equal(t, 1, report.Unknown)
	require.Equal(t, model.StatusUnknown, report.Results[0].Status)
}

func TestVerifyDoesNotMutateSnapshot(t *testing.T) {
	t.Parallel()

	snap := snapshot.New()
	snap.Merge("a", map[string]string{"res:a": "expected"})
	before := snap.Revision()

	_, err := Verify(context.Background(), verifySpec(verifyStepDef("a"), verifyStepDef("b")), snap, newVerifyRegistry(t), nil)
	require.NoError(t, err)
	require.Equal(t, before, snap.Revision())
}
