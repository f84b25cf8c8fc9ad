package engine

import (
	"errors"
	"go-autoagent/internal/pack"
	"go-autoagent/internal/store"
)

var (
	ErrTaskNotFound        = store.ErrTaskNotFound
	ErrUnknownPack         = pack.ErrUnknownPack
	ErrSchemaValidation    = pack.ErrSchemaValidation
	ErrTaskTerminal        = errors.New("task is in a terminal state")
	ErrInvalidRewindTarget = errors.New("invalid rewind target")
	ErrTaskBusy            = errors.New("task is busy")
	ErrPlanner             = errors.New("planner failed")
	ErrStepTimeout         = errors.New("step timed out")
	ErrStepNotFound        = errors.New("step not found")
	ErrEmptyObjective      = errors.New("objective is empty")

	ErrMissingStore    = errors.New("store is required")
	ErrMissingRegistry = errors.New("pack registry is required")
	ErrMissingPlanner  = errors.New("planner is required")
)
