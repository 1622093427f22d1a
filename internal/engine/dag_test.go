package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

func makeStep(id string, deps ...string) config.Step {
	return config.Step{
		ID:        id,
		Kind:      config.KindInstallPackage,
		DependsOn: deps,
		Enabled:   true,
	}
}

func TestBuildGraphOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		steps     []config.Step
		wantOrder []string
	}{
		{
			name: "linear chain",
			steps: []config.Step{
				makeStep("a"),
				makeStep("b", "a"),
				makeStep("c", "b"),
			},
			wantOrder: []string{"a", "b", "c"},
		},
		{
			name: "independent steps keep declaration order",
			steps: []config.Step{
				makeStep("c"),
				makeStep("a"),
				makeStep("b"),
			},
			wantOrder: []string{"c", "a", "b"},
		},
		{
			name: "ties resolve to earliest declared",
			steps: []config.Step{
				makeStep("base"),
				makeStep("late", "base"),
				makeStep("early", "base"),
				makeStep("final", "late", "early"),
			},
			wantOrder: []string{"base", "late", "early", "final"},
		},
		{
			name: "diamond",
			steps: []config.Step{
				makeStep("root"),
				makeStep("left", "root"),
				makeStep("right", "root"),
				makeStep("join", "left", "right"),
			},
			wantOrder: []string{"root", "left", "right", "join"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			graph, err := BuildGraph(tt.steps)
			require.NoError(t, err)
			require.Equal(t, tt.wantOrder, graph.Order)
		})
	}
}

func TestBuildGraphOrderIsReproducible(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("e"),
		makeStep("d"),
		makeStep("c", "e"),
		makeStep("b", "d"),
		makeStep("a", "c", "b"),
	}

	first, err := BuildGraph(steps)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := BuildGraph(steps)
		require.NoError(t, err)
		require.Equal(t, first.Order, again.Order)
		require.Equal(t, first.Levels, again.Levels)
	}
}

func TestBuildGraphLevels(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("root"),
		makeStep("left", "root"),
		makeStep("right", "root"),
		makeStep("join", "left", "right"),
	}

	graph, err := BuildGraph(steps)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"root"},
		{"left", "right"},
		{"join"},
	}, graph.Levels)
}

func TestBuildGraphCycle(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("a", "c"),
		makeStep("b", "a"),
		makeStep("c", "b"),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)

	var cycleErr *stratumerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycle, 3)
	require.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Cycle)
	require.Contains(t, err.Error(), "dependency cycle detected")
}

func TestBuildGraphSelfCycle(t *testing.T) {
	t.Parallel()

	_, err := BuildGraph([]config.Step{makeStep("solo", "solo")})
	require.Error(t, err)

	var cycleErr *stratumerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, []string{"solo"}, cycleErr.Cycle)
}

func TestBuildGraphUnknownPrerequisite(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("a"),
		makeStep("b", "ghost"),
	}

	_, err := BuildGraph(steps)
	require.Error(t, err)

	var unknownErr *stratumerrors.UnknownPrerequisiteError
	require.ErrorAs(t, err, &unknownErr)
	require.Equal(t, "b", unknownErr.StepID)
	require.Equal(t, "ghost", unknownErr.Missing)
}

func TestBuildGraphDisabledSteps(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("a"),
		{ID: "b", Kind: config.KindInstallPackage, DependsOn: []string{"a"}, Enabled: false},
		makeStep("c", "b"),
	}

	graph, err := BuildGraph(steps)
	require.NoError(t, err)
	require.NotContains(t, graph.Nodes, "b")
	// The edge to a disabled prerequisite is vacuous, so c is a root.
	require.Equal(t, []string{"a", "c"}, graph.Order)
	require.Equal(t, [][]string{{"a", "c"}}, graph.Levels)
}

func TestBuildGraphDuplicateID(t *testing.T) {
	t.Parallel()

	_, err := BuildGraph([]config.Step{makeStep("dup"), makeStep("dup")})
	require.Error(t, err)

	var validationErr *stratumerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
