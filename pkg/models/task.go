package models

import (
	"time"
)

type TaskStatus string

const (
	TaskCreated    TaskStatus = "created"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed" // dead state
	TaskFailed     TaskStatus = "failed"    // dead state
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskCreated, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// Task is the aggregate root: an objective worked through an ordered history of steps.
type Task struct {
	ID         string     `json:"task_id"`
	Objective  string     `json:"objective"`
	Status     TaskStatus `json:"status"`
	Workspace  string     `json:"workspace"`
	Conclusion string     `json:"conclusion,omitempty"`
	Plan       *Plan      `json:"plan,omitempty"`
	Steps      []Step     `json:"steps"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NextIndex is the index the next executed step will receive.
func (t Task) NextIndex() int {
	return len(t.Steps)
}

func (t Task) LastStep() (Step, bool) {
	if len(t.Steps) == 0 {
		return Step{}, false
	}
	return t.Steps[len(t.Steps)-1], true
}

// Clone returns a deep copy so stores never share step slices or args with callers.
func (t Task) Clone() Task {
	out := t
	if t.Plan != nil {
		p := t.Plan.Clone()
		out.Plan = &p
	}
	out.Steps = make([]Step, len(t.Steps))
	for i := range t.Steps {
		out.Steps[i] = t.Steps[i].Clone()
	}
	return out
}

// TaskSummary is the list view of a task, without its step history.
type TaskSummary struct {
	ID        string     `json:"task_id"`
	Objective string     `json:"objective"`
	Status    TaskStatus `json:"status"`
	StepCount int        `json:"step_count"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t Task) Summary() TaskSummary {
	return TaskSummary{
		ID:        t.ID,
		Objective: t.Objective,
		Status:    t.Status,
		StepCount: len(t.Steps),
		CreatedAt: t.CreatedAt,
	}
}
