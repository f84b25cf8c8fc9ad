package engine

import (
	"context"
	"go-autoagent/internal/pack"
	"go-autoagent/pkg/models"
)

// PlanRequest is everything the planner is shown when choosing the next step.
type PlanRequest struct {
	TaskID    string
	Objective string
	History   []models.Step
	Packs     []pack.Descriptor
}

// Decision is exactly one of: a pack to run with its args, or a terminal directive.
type Decision struct {
	Thoughts  string
	Pack      string
	Args      map[string]any
	Directive models.Directive
	Reason    string
}

// Planner chooses what a task does next. It may be slow and non-deterministic.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Decision, error)
}

type PlannerFunc func(ctx context.Context, req PlanRequest) (Decision, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (Decision, error) {
	return f(ctx, req)
}
