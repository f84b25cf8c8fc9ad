package models

import (
	"time"
)

// State is the condition of an autorun agent driving a task.
type State string

const (
	Init     State = "init"
	Thinking State = "thinking"
	Idle     State = "idle"
	Failed   State = "failed" // dead state
	Finished State = "finished"
	Stopped  State = "stopped"
)

func (s State) Done() bool {
	return s == Failed || s == Finished || s == Stopped
}

type Error struct {
	ErrMessage string     `json:"error,omitempty"`
	Time       *time.Time `json:"time,omitempty"`
}

// RunStatus is reported by an autorun agent when asked.
type RunStatus struct {
	TaskID        string     `json:"task_id"`
	State         State      `json:"state"`
	TaskStatus    TaskStatus `json:"task_status,omitempty"`
	StepsExecuted int        `json:"steps_executed"`
	MaxSteps      int        `json:"max_steps"`
	Errs          *Error     `json:"error,omitempty"`
}
