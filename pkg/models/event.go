package models

import (
	"time"
)

type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventStepCompleted EventType = "step.completed"
	EventTaskFinished  EventType = "task.finished"
	EventTaskRewound   EventType = "task.rewound"
)

// Event is what observers receive after a change has been persisted.
type Event struct {
	Type      EventType  `json:"type"`
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"task_status,omitempty"`
	StepIndex *int       `json:"step_index,omitempty"`
	StepID    string     `json:"step_id,omitempty"`
	Pack      string     `json:"pack,omitempty"`
	StepState StepStatus `json:"step_status,omitempty"`
	Time      time.Time  `json:"time"`
}

func StepEvent(task Task, step Step, at time.Time) Event {
	idx := step.Index
	return Event{
		Type:      EventStepCompleted,
		TaskID:    task.ID,
		Status:    task.Status,
		StepIndex: &idx,
		StepID:    step.ID,
		Pack:      step.Pack,
		StepState: step.Status,
		Time:      at,
	}
}

func TaskEvent(typ EventType, task Task, at time.Time) Event {
	return Event{Type: typ, TaskID: task.ID, Status: task.Status, Time: at}
}
