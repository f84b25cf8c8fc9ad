package engine

import (
	"context"
	"fmt"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
)

// Rewind keeps steps [0, target] and discards the rest along with the current plan.
// A terminal task goes back to in_progress. Side effects of discarded steps (files
// written, processes started) are not undone.
func (e *Engine) Rewind(ctx context.Context, taskID string, target int) (models.Task, error) {
	unlock, err := e.locks.Lock(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	task, err := e.store.LoadTask(ctx, taskID)
	if err != nil {
		return models.Task{}, fmt.Errorf("load task: %w", err)
	}
	if target < 0 || target >= len(task.Steps) {
		return models.Task{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRewindTarget, target, len(task.Steps))
	}

	var reopen models.TaskStatus
	if task.Status.Terminal() {
		if err := task.Transition(models.TaskInProgress); err != nil {
			return models.Task{}, err
		}
		reopen = task.Status
		task.Conclusion = ""
	}
	if err := e.store.TruncateSteps(ctx, taskID, target, reopen); err != nil {
		return models.Task{}, fmt.Errorf("truncate steps: %w", err)
	}
	task.Steps = task.Steps[:target+1]
	task.Plan = nil
	task.UpdatedAt = e.now()

	e.metrics.rewound()
	e.log.Info().
		Str(logger.TaskIDField, taskID).
		Int(logger.StepIndexField, target).
		Msg("task rewound")
	e.publish(ctx, models.TaskEvent(models.EventTaskRewound, task, task.UpdatedAt))

	return task, nil
}
