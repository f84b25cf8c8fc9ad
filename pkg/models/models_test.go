package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskCreated, TaskInProgress, true},
		{TaskCreated, TaskCompleted, true},
		{TaskInProgress, TaskFailed, true},
		{TaskInProgress, TaskInProgress, true},
		{TaskCompleted, TaskInProgress, true},
		{TaskFailed, TaskInProgress, true},
		{TaskInProgress, TaskCreated, false},
		{TaskCompleted, TaskFailed, false},
		{TaskFailed, TaskCreated, false},
		{TaskStatus("bogus"), TaskCreated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestTaskTransitionLeavesStatusOnError(t *testing.T) {
	task := Task{Status: TaskCompleted}
	require.Error(t, task.Transition(TaskFailed))
	assert.Equal(t, TaskCompleted, task.Status)

	require.NoError(t, task.Transition(TaskInProgress))
	assert.Equal(t, TaskInProgress, task.Status)
}

func TestTaskCloneIsDeep(t *testing.T) {
	task := Task{
		ID:    "t",
		Plan:  &Plan{Action: &Action{Pack: "echo", Args: map[string]any{"text": "a"}}},
		Steps: []Step{{Index: 0, Args: map[string]any{"x": 1}, Data: map[string]any{"y": 2}}},
	}
	clone := task.Clone()
	clone.Plan.Action.Args["text"] = "b"
	clone.Steps[0].Args["x"] = 9
	clone.Steps[0].Data["y"] = 9
	clone.Steps = append(clone.Steps, Step{Index: 1})

	assert.Equal(t, "a", task.Plan.Action.Args["text"])
	assert.Equal(t, 1, task.Steps[0].Args["x"])
	assert.Equal(t, 2, task.Steps[0].Data["y"])
	assert.Len(t, task.Steps, 1)
}

func TestCloneMapCopiesNestedValues(t *testing.T) {
	assert.Nil(t, CloneMap(nil))

	in := map[string]any{
		"opts":  map[string]any{"depth": 1, "tags": []any{"a", map[string]any{"k": "v"}}},
		"names": []string{"x"},
		"n":     3,
	}
	out := CloneMap(in)
	require.Equal(t, in, out)

	out["opts"].(map[string]any)["depth"] = 2
	out["opts"].(map[string]any)["tags"].([]any)[0] = "changed"
	out["opts"].(map[string]any)["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	out["names"].([]string)[0] = "changed"

	opts := in["opts"].(map[string]any)
	assert.Equal(t, 1, opts["depth"])
	assert.Equal(t, "a", opts["tags"].([]any)[0])
	assert.Equal(t, "v", opts["tags"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, "x", in["names"].([]string)[0])
}

func TestStepAndPlanCloneAreDeep(t *testing.T) {
	step := Step{Args: map[string]any{"opts": map[string]any{"mode": "fast"}}}
	sc := step.Clone()
	sc.Args["opts"].(map[string]any)["mode"] = "slow"
	assert.Equal(t, "fast", step.Args["opts"].(map[string]any)["mode"])

	plan := Plan{Action: &Action{Pack: "p", Args: map[string]any{"list": []any{"one"}}}}
	pc := plan.Clone()
	pc.Action.Args["list"].([]any)[0] = "two"
	assert.Equal(t, "one", plan.Action.Args["list"].([]any)[0])
}

func TestTaskHelpers(t *testing.T) {
	task := Task{ID: "t", Objective: "o", Status: TaskInProgress}
	_, ok := task.LastStep()
	assert.False(t, ok)
	assert.Equal(t, 0, task.NextIndex())

	task.Steps = []Step{{Index: 0, Pack: "a"}, {Index: 1, Pack: "b"}}
	last, ok := task.LastStep()
	require.True(t, ok)
	assert.Equal(t, "b", last.Pack)
	assert.Equal(t, 2, task.NextIndex())
	assert.Equal(t, 2, task.Summary().StepCount)
}

func TestStepOutcome(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	s := Step{Status: StepRunning}
	s.Succeed("done", map[string]any{"k": "v"}, "h1", at)
	assert.Equal(t, StepSucceeded, s.Status)
	assert.True(t, s.Status.Final())
	assert.Equal(t, "h1", s.Handle)
	assert.Equal(t, at, s.EndedAt)

	f := Step{Status: StepRunning}
	f.Fail(ErrorKindTimeout, errors.New("too slow"), at)
	assert.Equal(t, StepFailed, f.Status)
	assert.Equal(t, ErrorKindTimeout, f.ErrorKind)
	assert.Equal(t, "too slow", f.Error)
	assert.False(t, StepPending.Final())
}

func TestPlanPending(t *testing.T) {
	var nilPlan *Plan
	assert.False(t, nilPlan.Pending(0))

	p := &Plan{Action: &Action{Pack: "echo"}, ForStep: 2}
	assert.True(t, p.Pending(2))
	assert.False(t, p.Pending(3))

	d := &Plan{Directive: DirectiveCompleted, ForStep: 2}
	assert.False(t, d.Pending(2))
}

func TestDirectiveStatus(t *testing.T) {
	assert.Equal(t, TaskCompleted, DirectiveCompleted.Status())
	assert.Equal(t, TaskFailed, DirectiveFailed.Status())
}

func TestStepEvent(t *testing.T) {
	at := time.Now()
	ev := StepEvent(Task{ID: "t", Status: TaskInProgress}, Step{ID: "s", Index: 3, Pack: "echo", Status: StepSucceeded}, at)
	assert.Equal(t, EventStepCompleted, ev.Type)
	require.NotNil(t, ev.StepIndex)
	assert.Equal(t, 3, *ev.StepIndex)
	assert.Equal(t, "echo", ev.Pack)
}

func TestStateDone(t *testing.T) {
	for _, s := range []State{Failed, Finished, Stopped} {
		assert.True(t, s.Done(), s)
	}
	for _, s := range []State{Init, Thinking, Idle} {
		assert.False(t, s.Done(), s)
	}
}
