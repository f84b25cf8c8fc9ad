// Package store defines the durable home of tasks and their steps.
package store

import (
	"context"
	"errors"
	"go-autoagent/pkg/models"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskExists    = errors.New("task already exists")
	ErrIndexConflict = errors.New("step index conflict")
)

// Repository persists tasks. Every method is atomic with respect to a single task.
type Repository interface {
	CreateTask(ctx context.Context, task models.Task) error
	LoadTask(ctx context.Context, taskID string) (models.Task, error)
	ListTasks(ctx context.Context) ([]models.TaskSummary, error)
	// AppendStep adds a finalized step and moves a created task to in_progress in
	// the same write. It fails with ErrIndexConflict unless step.Index equals the
	// current number of steps.
	AppendStep(ctx context.Context, taskID string, step models.Step) error
	// TruncateSteps keeps steps [0, keepThrough] and drops the current plan. A
	// non-empty reopen replaces the status and clears the conclusion in the same write.
	TruncateSteps(ctx context.Context, taskID string, keepThrough int, reopen models.TaskStatus) error
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, conclusion string) error
	SavePlan(ctx context.Context, taskID string, plan *models.Plan) error
	DeleteTask(ctx context.Context, taskID string) error
}
