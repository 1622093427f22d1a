package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"parse error", stratumerrors.NewParseError("spec.yaml", 3, fmt.Errorf("bad yaml")), 2},
		{"validation error", stratumerrors.NewValidationError("steps[0].id", "invalid", nil), 2},
		{"cycle error", stratumerrors.NewCycleError([]string{"a", "b"}), 2},
		{"unknown prerequisite", stratumerrors.NewUnknownPrerequisiteError("a", "ghost"), 2},
		{"conflict error", stratumerrors.NewConflictError("envvar:PATH", []string{"a", "b"}), 2},
		{"snapshot version error", stratumerrors.NewSnapshotVersionError("snap.json", "9", "1"), 2},
		{"execution error", stratumerrors.NewExecutionError("a", fmt.Errorf("boom")), 1},
		{"postcondition error", stratumerrors.NewPostconditionError("a", "still missing"), 1},
		{"verification failure", errVerificationFailed, 1},
		{"wrapped validation error", fmt.Errorf("context: %w", stratumerrors.NewValidationError("f", "m", nil)), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
