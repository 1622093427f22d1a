package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

// stepScript describes how the fake plugin behaves for one step.
type stepScript struct {
	keys           []string
	transientFails int
	permanentErr   error
	reportNoChange bool
}

// fakePlugin implements plugin.Plugin with per-step scripted behavior. Its
// postcondition holds once every resource key the step owns is present in
// the snapshot.
type fakePlugin struct {
	mu      sync.Mutex
	scripts map[string]*stepScript
	applied []string
}

func newFakePlugin() *fakePlugin {
	return &fakePlugin{scripts: make(map[string]*stepScript)}
}

func (p *fakePlugin) script(stepID string) *stepScript {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scripts[stepID]
	if !ok {
		s = &stepScript{}
		p.scripts[stepID] = s
	}
	if len(s.keys) == 0 {
		s.keys = []string{"res:" + stepID}
	}
	return s
}

func (p *fakePlugin) appliedOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.applied...)
}

func (p *fakePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{Kind: config.KindInstallPackage, Version: "0.0.0", Description: "test double"}
}

func (p *fakePlugin) Schema() any { return nil }

func (p *fakePlugin) ResourceKeys(step *config.Step) ([]string, error) {
	return p.script(step.ID).keys, nil
}

func (p *fakePlugin) Evaluate(_ context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error) {
	for _, key := range p.script(step.ID).keys {
		if _, ok := snap.Get(key); !ok {
			return &model.Evaluation{
				StepID:         step.ID,
				Status:         model.StatusMissing,
				RequiresAction: true,
				Message:        fmt.Sprintf("%s not yet provisioned", key),
			}, nil
		}
	}
	return &model.Evaluation{
		StepID:  step.ID,
		Status:  model.StatusSatisfied,
		Message: "all resources present",
	}, nil
}

func (p *fakePlugin) Apply(_ context.Context, _ *model.Evaluation, step *config.Step) (*model.StepResult, error) {
	script := p.script(step.ID)

	p.mu.Lock()
	if script.permanentErr != nil {
		p.mu.Unlock()
		return nil, script.permanentErr
	}
	if script.transientFails > 0 {
		script.transientFails--
		p.mu.Unlock()
		return nil, stratumerrors.NewTransientError(step.ID, fmt.Errorf("connection reset"))
	}
	p.applied = append(p.applied, step.ID)
	p.mu.Unlock()

	changes := make(map[string]string, len(script.keys))
	if !script.reportNoChange {
		for _, key := range script.keys {
			changes[key] = "provisioned"
		}
	}
	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusApplied,
		Message: "applied",
		Changes: changes,
	}, nil
}

func newTestContext(t *testing.T, steps []config.Step, fake *fakePlugin, opts Options) *ExecutionContext {
	t.Helper()

	registry := plugin.NewRegistry()
	require.NoError(t, registry.Register(fake))

	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}

	return &ExecutionContext{
		Spec:     &config.Spec{Version: "1.0", Name: "test", Steps: steps},
		Registry: registry,
		Snapshot: snapshot.New(),
		Options:  opts,
		Context:  context.Background(),
	}
}

func buildPlan(t *testing.T, steps []config.Step) *ExecutionPlan {
	t.Helper()
	graph, err := BuildGraph(steps)
	require.NoError(t, err)
	plan, err := NewPlan(graph)
	require.NoError(t, err)
	return plan
}

func TestExecuteSequentialAppliesInOrder(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("base"),
		makeStep("middle", "base"),
		makeStep("top", "middle"),
	}
	fake := newFakePlugin()
	execCtx := newTestContext(t, steps, fake, Options{})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.Equal(t, model.StatusApplied, res.Status)
		require.Equal(t, 1, res.Attempts)
	}
	require.Equal(t, []string{"base", "middle", "top"}, fake.appliedOrder())
	require.Equal(t, uint64(3), execCtx.Snapshot.Revision())

	value, ok := execCtx.Snapshot.Get("res:base")
	require.True(t, ok)
	require.Equal(t, "provisioned", value)
}

func TestExecuteIdempotentRerun(t *testing.T) {
	t.Parallel()

	steps := []config.Step{makeStep("a"), makeStep("b", "a")}
	fake := newFakePlugin()
	execCtx := newTestContext(t, steps, fake, Options{})
	plan := buildPlan(t, steps)

	_, err := Execute(execCtx, plan)
	require.NoError(t, err)
	revision := execCtx.Snapshot.Revision()

	results, err := Execute(execCtx, plan)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, model.StatusSkipped, res.Status)
	}
	require.Equal(t, revision, execCtx.Snapshot.Revision())
	require.Equal(t, []string{"a", "b"}, fake.appliedOrder())
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	steps := []config.Step{makeStep("flaky")}
	fake := newFakePlugin()
	fake.script("flaky").transientFails = 2
	execCtx := newTestContext(t, steps, fake, Options{Retries: 3})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, model.StatusApplied, results[0].Status)
	require.Equal(t, 3, results[0].Attempts)
}

func TestExecuteTransientExhaustionHalts(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("doomed"),
		makeStep("never", "doomed"),
	}
	fake := newFakePlugin()
	fake.script("doomed").transientFails = 10
	execCtx := newTestContext(t, steps, fake, Options{Retries: 2})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)

	var execErr *stratumerrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "doomed", execErr.StepID)
	require.True(t, stratumerrors.IsTransient(err))

	require.Len(t, results, 1)
	require.Equal(t, model.StatusFailed, results[0].Status)
	require.Equal(t, 3, results[0].Attempts)
	require.Empty(t, fake.appliedOrder())
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	steps := []config.Step{makeStep("broken")}
	fake := newFakePlugin()
	fake.script("broken").permanentErr = stratumerrors.NewNonTransientError("broken", fmt.Errorf("unsupported manager"))
	execCtx := newTestContext(t, steps, fake, Options{Retries: 5})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)

	var permErr *stratumerrors.NonTransientError
	require.ErrorAs(t, err, &permErr)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Attempts)
}

func TestExecutePostconditionNotMetIsFatal(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("good"),
		makeStep("liar", "good"),
		makeStep("unreached", "liar"),
	}
	fake := newFakePlugin()
	fake.script("liar").reportNoChange = true
	execCtx := newTestContext(t, steps, fake, Options{Retries: 3})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)

	var postErr *stratumerrors.PostconditionError
	require.ErrorAs(t, err, &postErr)
	require.Equal(t, "liar", postErr.StepID)

	// Action success without the postcondition is never retried.
	require.Len(t, results, 2)
	require.Equal(t, model.StatusApplied, results[0].Status)
	require.Equal(t, model.StatusFailed, results[1].Status)
	require.Equal(t, 1, results[1].Attempts)

	// Earlier effects stay committed.
	require.Equal(t, uint64(1), execCtx.Snapshot.Revision())
	_, ok := execCtx.Snapshot.Get("res:good")
	require.True(t, ok)
	_, ok = execCtx.Snapshot.Get("res:liar")
	require.False(t, ok)
}

func TestExecuteDryRun(t *testing.T) {
	t.Parallel()

	steps := []config.Step{makeStep("a"), makeStep("b", "a")}
	fake := newFakePlugin()
	execCtx := newTestContext(t, steps, fake, Options{DryRun: true})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, model.StatusWouldApply, res.Status)
	}
	require.Empty(t, fake.appliedOrder())
	require.Equal(t, uint64(0), execCtx.Snapshot.Revision())
}

func TestExecuteConcurrent(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("root"),
		makeStep("left", "root"),
		makeStep("right", "root"),
		makeStep("join", "left", "right"),
	}
	fake := newFakePlugin()
	execCtx := newTestContext(t, steps, fake, Options{Parallel: 4})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		require.Equal(t, model.StatusApplied, res.Status)
	}
	require.Equal(t, uint64(4), execCtx.Snapshot.Revision())

	applied := fake.appliedOrder()
	require.Equal(t, "root", applied[0])
	require.Equal(t, "join", applied[3])
}

func TestExecuteConcurrentConflict(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("writer_one"),
		makeStep("writer_two"),
	}
	fake := newFakePlugin()
	fake.script("writer_one").keys = []string{"envvar:PYTHONPATH"}
	fake.script("writer_two").keys = []string{"envvar:PYTHONPATH"}
	execCtx := newTestContext(t, steps, fake, Options{Parallel: 2})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)

	var conflictErr *stratumerrors.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "envvar:PYTHONPATH", conflictErr.Key)
	require.ElementsMatch(t, []string{"writer_one", "writer_two"}, conflictErr.StepIDs)

	// Conflicts are rejected before anything in the level runs.
	require.Empty(t, results)
	require.Empty(t, fake.appliedOrder())
	require.Equal(t, uint64(0), execCtx.Snapshot.Revision())
}

func TestExecuteConcurrentOrderedSameKeyIsAllowed(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("first"),
		makeStep("second", "first"),
	}
	fake := newFakePlugin()
	fake.script("first").keys = []string{"envvar:PATH"}
	fake.script("second").keys = []string{"envvar:PATH", "res:second"}
	execCtx := newTestContext(t, steps, fake, Options{Parallel: 2})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(2), execCtx.Snapshot.Revision())
}

func TestExecuteConcurrentFailureHaltsNextLevel(t *testing.T) {
	t.Parallel()

	steps := []config.Step{
		makeStep("ok"),
		makeStep("bad"),
		makeStep("after", "ok", "bad"),
	}
	fake := newFakePlugin()
	fake.script("bad").permanentErr = stratumerrors.NewNonTransientError("bad", fmt.Errorf("boom"))
	execCtx := newTestContext(t, steps, fake, Options{Parallel: 2})

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)
	require.NotContains(t, fake.appliedOrder(), "after")

	for _, res := range results {
		require.NotEqual(t, "after", res.StepID)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	t.Parallel()

	steps := []config.Step{makeStep("a")}
	fake := newFakePlugin()
	execCtx := newTestContext(t, steps, fake, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	execCtx.Context = ctx

	results, err := Execute(execCtx, buildPlan(t, steps))
	require.Error(t, err)
	require.Empty(t, results)
	require.Empty(t, fake.appliedOrder())
}
