package models

import (
	"time"
)

// Directive is a planner verdict that ends the task instead of running a pack.
type Directive string

const (
	DirectiveNone      Directive = ""
	DirectiveCompleted Directive = "completed"
	DirectiveFailed    Directive = "failed"
)

func (d Directive) Status() TaskStatus {
	if d == DirectiveFailed {
		return TaskFailed
	}
	return TaskCompleted
}

type Action struct {
	Pack string         `json:"pack"`
	Args map[string]any `json:"args,omitempty"`
}

// Plan is the planner's rationale for the upcoming step. A new planning cycle replaces it.
type Plan struct {
	Text      string    `json:"plan"`
	Action    *Action   `json:"action,omitempty"`
	Directive Directive `json:"directive,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ForStep   int       `json:"for_step"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the plan still names an action for the step at index next.
func (p *Plan) Pending(next int) bool {
	return p != nil && p.Action != nil && p.ForStep == next
}

func (p Plan) Clone() Plan {
	out := p
	if p.Action != nil {
		a := *p.Action
		a.Args = CloneMap(p.Action.Args)
		out.Action = &a
	}
	return out
}
