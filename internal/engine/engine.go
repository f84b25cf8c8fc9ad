// Package engine drives tasks forward one step at a time: it asks the planner what to
// do next, runs the chosen pack, and records the outcome.
package engine

import (
	"context"
	"fmt"
	"go-autoagent/internal/notify"
	"go-autoagent/internal/pack"
	"go-autoagent/internal/store"
	"go-autoagent/internal/workspace"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExitPack is the reserved pack name that ends a task instead of recording a step.
const ExitPack = "exit"

const defaultStepTimeout = 30 * time.Second

type Dependencies struct {
	Store      store.Repository
	Registry   *pack.Registry
	Planner    Planner
	Workspaces workspace.Provider
	Events     notify.Sink
	Metrics    *Metrics
	// StepTimeout bounds a single pack invocation.
	StepTimeout time.Duration
	Clock       func() time.Time
}

type Engine struct {
	store       store.Repository
	registry    *pack.Registry
	planner     Planner
	workspaces  workspace.Provider
	events      notify.Sink
	metrics     *Metrics
	stepTimeout time.Duration
	now         func() time.Time
	locks       *taskLocks
	log         zerolog.Logger
}

// StepResult is what one ExecuteNextStep call produced. Step is nil when the
// planner ended the task with a directive.
type StepResult struct {
	Task models.Task
	Step *models.Step
}

func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, ErrMissingStore
	}
	if deps.Registry == nil {
		return nil, ErrMissingRegistry
	}
	if deps.Planner == nil {
		return nil, ErrMissingPlanner
	}
	e := &Engine{
		store:       deps.Store,
		registry:    deps.Registry,
		planner:     deps.Planner,
		workspaces:  deps.Workspaces,
		events:      deps.Events,
		metrics:     deps.Metrics,
		stepTimeout: deps.StepTimeout,
		now:         deps.Clock,
		locks:       newTaskLocks(),
		log:         logger.Component("engine"),
	}
	if e.stepTimeout <= 0 {
		e.stepTimeout = defaultStepTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.events == nil {
		e.events = notify.Multi{}
	}
	return e, nil
}

// CreateTask registers a new objective and gives it a workspace.
func (e *Engine) CreateTask(ctx context.Context, objective string) (models.Task, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return models.Task{}, ErrEmptyObjective
	}

	now := e.now()
	task := models.Task{
		ID:        uuid.NewString(),
		Objective: objective,
		Status:    models.TaskCreated,
		Steps:     []models.Step{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.workspaces != nil {
		ws, err := e.workspaces.Open(ctx, task.ID)
		if err != nil {
			return models.Task{}, fmt.Errorf("open workspace: %w", err)
		}
		task.Workspace = ws.Path
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		e.disposeWorkspace(ctx, task.ID)
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}

	e.log.Info().Str(logger.TaskIDField, task.ID).Msg("task created")
	e.publish(ctx, models.TaskEvent(models.EventTaskCreated, task, now))
	return task, nil
}

func (e *Engine) GetTask(ctx context.Context, taskID string) (models.Task, error) {
	task, err := e.store.LoadTask(ctx, taskID)
	if err != nil {
		return models.Task{}, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

func (e *Engine) ListTasks(ctx context.Context) ([]models.TaskSummary, error) {
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (e *Engine) ListSteps(ctx context.Context, taskID string) ([]models.Step, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.Steps, nil
}

// GetStep finds a step by its id, or by its index when ref is numeric.
func (e *Engine) GetStep(ctx context.Context, taskID, ref string) (models.Step, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return models.Step{}, err
	}
	for _, s := range task.Steps {
		if s.ID == ref {
			return s, nil
		}
	}
	if idx, err := strconv.Atoi(ref); err == nil && idx >= 0 && idx < len(task.Steps) {
		return task.Steps[idx], nil
	}
	return models.Step{}, fmt.Errorf("%w: %s/%s", ErrStepNotFound, taskID, ref)
}

// DeleteTask removes the task and its workspace. It waits for any in-flight step.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	unlock, err := e.locks.Lock(ctx, taskID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	e.disposeWorkspace(ctx, taskID)
	e.log.Info().Str(logger.TaskIDField, taskID).Msg("task deleted")
	return nil
}

// Packs lists the enabled packs, optionally filtered by category.
func (e *Engine) Packs(categories ...string) []pack.Descriptor {
	return e.registry.List(categories...)
}

func (e *Engine) disposeWorkspace(ctx context.Context, taskID string) {
	if e.workspaces == nil {
		return
	}
	if err := e.workspaces.Dispose(ctx, taskID); err != nil {
		e.log.Warn().Err(err).Str(logger.TaskIDField, taskID).Msg("failed to dispose workspace")
	}
}

// publish never fails the caller; observers are best effort.
func (e *Engine) publish(ctx context.Context, event models.Event) {
	if err := e.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.log.Warn().Err(err).
			Str(logger.TaskIDField, event.TaskID).
			Str(logger.EventField, string(event.Type)).
			Msg("failed to publish event")
	}
}
