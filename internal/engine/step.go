package engine

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/pack"
	"go-autoagent/internal/workspace"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"

	"github.com/segmentio/ksuid"
)

// ExecuteNextStep advances the task by exactly one step, or finishes it when the
// planner issues a directive. Calls for the same task are serialized; the second
// caller waits until the first has recorded its outcome.
//
// A planner failure aborts the call without touching the history. Every failure
// after that point, pack errors and timeouts included, is recorded as a failed
// step rather than returned.
func (e *Engine) ExecuteNextStep(ctx context.Context, taskID string) (StepResult, error) {
	unlock, err := e.locks.Lock(ctx, taskID)
	if err != nil {
		return StepResult{}, err
	}
	defer unlock()

	started := e.now()
	task, err := e.store.LoadTask(ctx, taskID)
	if err != nil {
		return StepResult{}, fmt.Errorf("load task: %w", err)
	}
	if task.Status.Terminal() {
		return StepResult{}, fmt.Errorf("%w: %s is %s", ErrTaskTerminal, task.ID, task.Status)
	}

	plan, err := e.nextPlan(ctx, task)
	if err != nil {
		return StepResult{}, err
	}
	task.Plan = plan

	if plan.Action == nil {
		return e.finish(ctx, task, plan.Directive, plan.Reason)
	}
	if plan.Action.Pack == ExitPack {
		return e.exit(ctx, task, plan.Action.Args)
	}

	step := e.runStep(ctx, task, plan)

	// AppendStep starts a created task in the same write.
	if err := task.Transition(models.TaskInProgress); err != nil {
		return StepResult{}, err
	}
	// the outcome must be recorded even if the caller went away mid-invocation
	if err := e.store.AppendStep(context.WithoutCancel(ctx), task.ID, step); err != nil {
		return StepResult{}, fmt.Errorf("append step: %w", err)
	}
	task.Steps = append(task.Steps, step)
	task.UpdatedAt = step.EndedAt

	e.metrics.observeStep(step.Pack, string(step.Status), string(step.ErrorKind), e.now().Sub(started))
	e.logStep(step)
	e.publish(ctx, models.StepEvent(task, step, step.EndedAt))

	return StepResult{Task: task, Step: &step}, nil
}

// nextPlan reuses a persisted plan whose step was never recorded, otherwise asks
// the planner and persists its answer before anything runs.
func (e *Engine) nextPlan(ctx context.Context, task models.Task) (*models.Plan, error) {
	next := task.NextIndex()
	if task.Plan.Pending(next) {
		e.log.Debug().Str(logger.TaskIDField, task.ID).Int(logger.StepIndexField, next).Msg("reusing pending plan")
		return task.Plan, nil
	}

	decision, err := e.planner.Plan(ctx, PlanRequest{
		TaskID:    task.ID,
		Objective: task.Objective,
		History:   task.Steps,
		Packs:     e.registry.List(),
	})
	if err != nil {
		e.metrics.plannerFailed()
		return nil, fmt.Errorf("%w: %w", ErrPlanner, err)
	}

	plan := &models.Plan{
		Text:      decision.Thoughts,
		Directive: decision.Directive,
		Reason:    decision.Reason,
		ForStep:   next,
		CreatedAt: e.now(),
	}
	switch {
	case decision.Directive != models.DirectiveNone:
		if decision.Directive != models.DirectiveCompleted && decision.Directive != models.DirectiveFailed {
			e.metrics.plannerFailed()
			return nil, fmt.Errorf("%w: unknown directive %q", ErrPlanner, decision.Directive)
		}
	case decision.Pack != "":
		plan.Action = &models.Action{Pack: decision.Pack, Args: decision.Args}
	default:
		e.metrics.plannerFailed()
		return nil, fmt.Errorf("%w: decision names neither a pack nor a directive", ErrPlanner)
	}

	if err := e.store.SavePlan(ctx, task.ID, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	return plan, nil
}

func (e *Engine) runStep(ctx context.Context, task models.Task, plan *models.Plan) models.Step {
	args := models.CloneMap(plan.Action.Args)
	if args == nil {
		args = map[string]any{}
	}

	step := models.Step{
		ID:        ksuid.New().String(),
		TaskID:    task.ID,
		Index:     task.NextIndex(),
		Pack:      plan.Action.Pack,
		Args:      args,
		Thoughts:  plan.Text,
		Status:    models.StepPending,
		StartedAt: e.now(),
	}

	p, err := e.registry.ResolveEnabled(step.Pack)
	if err != nil {
		step.Fail(models.ErrorKindUnknownPack, err, e.now())
		return step
	}
	if err := p.Descriptor().InputSchema.Validate(step.Args); err != nil {
		step.Fail(models.ErrorKindSchemaValidation, err, e.now())
		return step
	}

	step.Status = models.StepRunning
	out, err := e.invoke(ctx, p, pack.Invocation{
		TaskID:    task.ID,
		Objective: task.Objective,
		StepIndex: step.Index,
		Workspace: workspace.Handle{Path: task.Workspace},
		Args:      args,
	})
	switch {
	case errors.Is(err, ErrStepTimeout):
		step.Fail(models.ErrorKindTimeout, err, e.now())
	case err != nil:
		step.Fail(models.ErrorKindPack, err, e.now())
	default:
		step.Succeed(out.Text, out.Data, out.Handle, e.now())
	}
	return step
}

// invoke runs the pack under the step timeout. A pack that ignores its context is
// abandoned once the deadline passes so the task lock is not held forever.
func (e *Engine) invoke(ctx context.Context, p pack.Pack, in pack.Invocation) (pack.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	type result struct {
		out pack.Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("pack %s panicked: %v", p.Descriptor().Name, r)}
			}
		}()
		out, err := p.Invoke(ctx, in)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pack.Output{}, fmt.Errorf("%w after %s: %w", ErrStepTimeout, e.stepTimeout, r.err)
		}
		return r.out, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pack.Output{}, fmt.Errorf("%w after %s", ErrStepTimeout, e.stepTimeout)
		}
		return pack.Output{}, fmt.Errorf("invocation cancelled: %w", ctx.Err())
	}
}

func (e *Engine) exit(ctx context.Context, task models.Task, args map[string]any) (StepResult, error) {
	directive := models.DirectiveCompleted
	if ok, isBool := args["success"].(bool); isBool && !ok {
		directive = models.DirectiveFailed
	}
	conclusion, _ := args["conclusion"].(string)
	return e.finish(ctx, task, directive, conclusion)
}

func (e *Engine) finish(ctx context.Context, task models.Task, directive models.Directive, reason string) (StepResult, error) {
	if err := task.Transition(directive.Status()); err != nil {
		return StepResult{}, err
	}
	task.Conclusion = reason
	if err := e.store.UpdateTaskStatus(context.WithoutCancel(ctx), task.ID, task.Status, reason); err != nil {
		return StepResult{}, fmt.Errorf("update task status: %w", err)
	}
	task.UpdatedAt = e.now()

	e.metrics.taskFinished(string(task.Status))
	e.log.Info().
		Str(logger.TaskIDField, task.ID).
		Str(logger.StatusField, string(task.Status)).
		Str("conclusion", reason).
		Msg("task finished")
	e.publish(ctx, models.TaskEvent(models.EventTaskFinished, task, task.UpdatedAt))

	return StepResult{Task: task}, nil
}

func (e *Engine) logStep(step models.Step) {
	ev := e.log.Info()
	if step.Status == models.StepFailed {
		ev = e.log.Warn().Str("error_kind", string(step.ErrorKind)).Str("error", step.Error)
	}
	ev.Str(logger.TaskIDField, step.TaskID).
		Int(logger.StepIndexField, step.Index).
		Str(logger.StepIDField, step.ID).
		Str(logger.PackField, step.Pack).
		Str(logger.StatusField, string(step.Status)).
		Msg("step recorded")
}
