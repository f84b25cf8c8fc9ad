package handler

import (
	"context"
	"fmt"
	"go-autoagent/internal/engine"
	"time"
)

// Stepper is the slice of the engine the runner drives.
type Stepper interface {
	ExecuteNextStep(ctx context.Context, taskID string) (engine.StepResult, error)
}

type Handler struct {
	stepper Stepper
	timeout time.Duration
}

func New(stepper Stepper, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Handler{
		stepper: stepper,
		timeout: timeout,
	}
}

// Step runs one planning cycle and its pack under the handler timeout.
func (h *Handler) Step(ctx context.Context, taskID string) (engine.StepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.stepper.ExecuteNextStep(ctx, taskID)
	if err != nil {
		return engine.StepResult{}, fmt.Errorf("execute next step: %w", err)
	}
	return res, nil
}
