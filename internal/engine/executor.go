package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/logger"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

// Execute applies the plan against the context's snapshot and returns step
// results in plan order. A failed step halts execution of the remaining
// plan; results accumulated up to that point are always returned for
// diagnosis. The snapshot keeps whatever was applied before the failure:
// provisioning is additive and idempotent, not transactional.
func Execute(execCtx *ExecutionContext, plan *ExecutionPlan) ([]model.StepResult, error) {
	if execCtx == nil {
		return nil, stratumerrors.NewExecutionError("", fmt.Errorf("execution context is nil"))
	}
	if execCtx.Spec == nil || execCtx.Registry == nil || execCtx.Snapshot == nil {
		return nil, stratumerrors.NewExecutionError("", fmt.Errorf("execution context is incomplete"))
	}
	if plan == nil {
		return nil, stratumerrors.NewExecutionError("", fmt.Errorf("execution plan is nil"))
	}

	baseCtx := execCtx.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	lookup := config.StepMap(execCtx.Spec.Steps)

	if execCtx.Options.Parallel > 1 {
		return executeConcurrent(ctx, cancel, execCtx, plan, lookup)
	}
	return executeSequential(ctx, execCtx, plan, lookup)
}

func executeSequential(ctx context.Context, execCtx *ExecutionContext, plan *ExecutionPlan, lookup map[string]*config.Step) ([]model.StepResult, error) {
	var results []model.StepResult

	for _, stepID := range plan.Order {
		if ctx.Err() != nil {
			return results, stratumerrors.NewExecutionError(stepID, ctx.Err())
		}

		step, ok := lookup[stepID]
		if !ok {
			return results, stratumerrors.NewExecutionError(stepID, fmt.Errorf("step not found in specification"))
		}

		result, err := executeStep(ctx, execCtx, step)
		if result != nil {
			results = append(results, *result)
		}
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

func executeConcurrent(ctx context.Context, cancel context.CancelFunc, execCtx *ExecutionContext, plan *ExecutionPlan, lookup map[string]*config.Step) ([]model.StepResult, error) {
	var results []model.StepResult
	workers := make(chan struct{}, execCtx.Options.Parallel)

	for _, level := range plan.Levels {
		if ctx.Err() != nil {
			return results, stratumerrors.NewExecutionError("", ctx.Err())
		}

		if err := checkLevelConflicts(execCtx.Registry, lookup, level); err != nil {
			return results, err
		}

		levelResults := make([]*model.StepResult, len(level))
		var levelErr error
		var once sync.Once
		var wg sync.WaitGroup

		for idx, stepID := range level {
			step, ok := lookup[stepID]
			if !ok {
				return results, stratumerrors.NewExecutionError(stepID, fmt.Errorf("step not found in specification"))
			}

			wg.Add(1)
			go func(idx int, step *config.Step) {
				defer wg.Done()

				select {
				case workers <- struct{}{}:
					defer func() { <-workers }()
				case <-ctx.Done():
					return
				}

				res, err := executeStep(ctx, execCtx, step)
				levelResults[idx] = res
				if err != nil {
					once.Do(func() {
						levelErr = err
						cancel()
					})
				}
			}(idx, step)
		}

		wg.Wait()

		for _, res := range levelResults {
			if res != nil {
				results = append(results, *res)
			}
		}
		if levelErr != nil {
			return results, levelErr
		}
	}

	return results, nil
}

// checkLevelConflicts rejects two unordered steps writing the same resource
// key before either runs. Ordered writers to the same key (PATH composition)
// always land in different levels, so they never trip this.
func checkLevelConflicts(registry *plugin.Registry, lookup map[string]*config.Step, level []string) error {
	writers := make(map[string][]string)
	for _, stepID := range level {
		step, ok := lookup[stepID]
		if !ok {
			continue
		}
		p, err := registry.Get(step.Kind)
		if err != nil {
			return stratumerrors.NewExecutionError(stepID, err)
		}
		keys, err := p.ResourceKeys(step)
		if err != nil {
			return stratumerrors.NewExecutionError(stepID, err)
		}
		for _, key := range keys {
			writers[key] = append(writers[key], stepID)
		}
	}

	for key, stepIDs := range writers {
		if len(stepIDs) > 1 {
			return stratumerrors.NewConflictError(key, stepIDs)
		}
	}
	return nil
}

func executeStep(ctx context.Context, execCtx *ExecutionContext, step *config.Step) (*model.StepResult, error) {
	start := time.Now()
	log := execCtx.Logger.WithStep(step.ID, step.Kind)

	p, err := execCtx.Registry.Get(step.Kind)
	if err != nil {
		return failedResult(step.ID, start, err), stratumerrors.NewExecutionError(step.ID, err)
	}

	eval, err := p.Evaluate(ctx, step, execCtx.Snapshot)
	if err != nil {
		log.Error(err, "postcondition evaluation failed")
		return failedResult(step.ID, start, err), stratumerrors.NewExecutionError(step.ID, err)
	}

	if !eval.RequiresAction {
		log.Debug("postcondition already satisfied, skipping")
		return &model.StepResult{
			StepID:    step.ID,
			Status:    model.StatusSkipped,
			Message:   eval.Message,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}, nil
	}

	if execCtx.Options.DryRun {
		return &model.StepResult{
			StepID:    step.ID,
			Status:    model.StatusWouldApply,
			Message:   eval.Message,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}, nil
	}

	result, attempts, err := applyWithRetry(ctx, execCtx, p, eval, step, log)
	if result == nil {
		result = &model.StepResult{StepID: step.ID}
	}
	result.Attempts = attempts
	result.Duration = time.Since(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	if err != nil {
		log.Error(err, "step application failed")
		result.Status = model.StatusFailed
		if result.Error == nil {
			result.Error = err
		}
		if result.Message == "" {
			result.Message = err.Error()
		}
		return result, stratumerrors.NewExecutionError(step.ID, err)
	}

	// The action reported success; the postcondition must agree before the
	// snapshot commits.
	recheck, err := p.Evaluate(ctx, step, execCtx.Snapshot.Preview(result.Changes))
	if err != nil {
		log.Error(err, "postcondition re-evaluation failed")
		result.Status = model.StatusFailed
		result.Error = err
		return result, stratumerrors.NewExecutionError(step.ID, err)
	}
	if recheck.Status != model.StatusSatisfied {
		postErr := stratumerrors.NewPostconditionError(step.ID, recheck.Message)
		log.Error(postErr, "action and postcondition disagree")
		result.Status = model.StatusFailed
		result.Error = postErr
		result.Message = recheck.Message
		return result, postErr
	}

	execCtx.Snapshot.Merge(step.ID, result.Changes)
	log.Info("step applied")
	return result, nil
}

// applyWithRetry runs the plugin action, retrying transient failures with
// exponential backoff up to the configured bound. Each attempt gets its own
// timeout; an expired attempt surfaces as a transient failure from the
// plugin's classifier and re-enters the retry policy.
func applyWithRetry(ctx context.Context, execCtx *ExecutionContext, p plugin.Plugin, eval *model.Evaluation, step *config.Step, log *logger.Logger) (*model.StepResult, int, error) {
	opts := execCtx.Options
	timeout := opts.timeoutFor(step.Kind)

	expo := backoff.NewExponentialBackOff()
	if opts.RetryInterval > 0 {
		expo.InitialInterval = opts.RetryInterval
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)

	var result *model.StepResult
	attempts := 0

	operation := func() error {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, applyErr := p.Apply(attemptCtx, eval, step)
		if res != nil {
			result = res
		}
		if applyErr == nil {
			return nil
		}
		if stratumerrors.IsTransient(applyErr) && ctx.Err() == nil {
			log.Warn(fmt.Sprintf("transient failure on attempt %d: %v", attempts, applyErr))
			return applyErr
		}
		return backoff.Permanent(applyErr)
	}

	err := backoff.Retry(operation, policy)
	return result, attempts, err
}

func failedResult(stepID string, start time.Time, err error) *model.StepResult {
	return &model.StepResult{
		StepID:    stepID,
		Status:    model.StatusFailed,
		Message:   err.Error(),
		Error:     err,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
}
