package models

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

// rewind is the only way out of a terminal state
var allowedTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskCreated: {
		TaskInProgress: {},
		TaskCompleted:  {},
		TaskFailed:     {},
	},
	TaskInProgress: {
		TaskCompleted: {},
		TaskFailed:    {},
	},
	TaskCompleted: {
		TaskInProgress: {},
	},
	TaskFailed: {
		TaskInProgress: {},
	},
}

func ValidateTransition(from, to TaskStatus) error {
	if from == to {
		return nil
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (t *Task) Transition(to TaskStatus) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	return nil
}
