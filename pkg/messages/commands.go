package messages

import (
	"go-autoagent/pkg/models"
)

// RunTask starts driving a task until it is terminal or the step budget is spent.
type RunTask struct {
	TaskID   string
	MaxSteps int
}

// NextStep is sent by the runner to itself between steps so status requests interleave.
type NextStep struct{}

type StepResult struct {
	Step *models.Step
	Task models.Task
}

type StopRun struct{}

type GetStatus struct{}

type ReportError struct {
	Error models.Error
}
