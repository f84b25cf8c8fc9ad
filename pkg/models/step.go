package models

import (
	"time"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

func (s StepStatus) Final() bool {
	return s == StepSucceeded || s == StepFailed
}

// ErrorKind classifies why a step failed. The planner sees it on the next cycle.
type ErrorKind string

const (
	ErrorKindUnknownPack      ErrorKind = "unknown_pack"
	ErrorKindSchemaValidation ErrorKind = "schema_validation"
	ErrorKindPack             ErrorKind = "pack_error"
	ErrorKindTimeout          ErrorKind = "timeout"
)

// Step is one recorded pack invocation. Index, Pack and Args never change once created.
type Step struct {
	ID        string         `json:"step_id"`
	TaskID    string         `json:"task_id"`
	Index     int            `json:"index"`
	Pack      string         `json:"pack"`
	Args      map[string]any `json:"args"`
	Thoughts  string         `json:"thoughts,omitempty"`
	Status    StepStatus     `json:"status"`
	Output    string         `json:"output,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

func (s *Step) Succeed(output string, data map[string]any, handle string, at time.Time) {
	s.Status = StepSucceeded
	s.Output = output
	s.Data = data
	s.Handle = handle
	s.EndedAt = at
}

func (s *Step) Fail(kind ErrorKind, err error, at time.Time) {
	s.Status = StepFailed
	s.ErrorKind = kind
	if err != nil {
		s.Error = err.Error()
	}
	s.EndedAt = at
}

func (s Step) Clone() Step {
	out := s
	out.Args = CloneMap(s.Args)
	out.Data = CloneMap(s.Data)
	return out
}
