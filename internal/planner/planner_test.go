package planner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-autoagent/internal/engine"
	"go-autoagent/internal/pack"
	"go-autoagent/internal/planner"
	"go-autoagent/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	inputs  []map[string]any
}

func (f *fakeCompleter) Complete(_ context.Context, inputs map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.inputs)
	f.inputs = append(f.inputs, inputs)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return f.answers[len(f.answers)-1], nil
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    engine.Decision
		wantErr error
	}{
		{
			name: "pack in prose",
			raw:  "Sure! ```json\n{\"thoughts\": \"need os\", \"plan\": \"check the os\", \"pack\": \"os_info\", \"args\": {}}\n```",
			want: engine.Decision{Thoughts: "check the os", Pack: "os_info", Args: map[string]any{}},
		},
		{
			name: "thoughts used when plan empty",
			raw:  `{"thoughts": "write it down", "pack": "write_file", "args": {"filename": "a.txt", "text_content": "{x}"}}`,
			want: engine.Decision{Thoughts: "write it down", Pack: "write_file", Args: map[string]any{"filename": "a.txt", "text_content": "{x}"}},
		},
		{
			name: "directive wins over pack",
			raw:  `{"plan": "done", "pack": "exit", "args": {"x": 1}, "directive": "Completed", "reason": "all good"}`,
			want: engine.Decision{Thoughts: "done", Directive: models.DirectiveCompleted, Reason: "all good"},
		},
		{
			name: "failed directive",
			raw:  `{"directive": "failed", "reason": "no access"}`,
			want: engine.Decision{Directive: models.DirectiveFailed, Reason: "no access"},
		},
		{name: "empty", raw: "  ", wantErr: planner.ErrEmptyAnswer},
		{name: "no json", raw: "I cannot help with that", wantErr: planner.ErrBadAnswer},
		{name: "nothing to do", raw: `{"plan": "think more"}`, wantErr: planner.ErrBadAnswer},
		{name: "bad directive", raw: `{"directive": "paused"}`, wantErr: planner.ErrBadAnswer},
		{name: "args not an object", raw: `{"pack": "os_info", "args": "none"}`, wantErr: planner.ErrBadAnswer},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := planner.ParseDecision(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLM_PlanRendersInputs(t *testing.T) {
	t.Parallel()
	completer := &fakeCompleter{answers: []string{`{"plan": "read it", "pack": "read_file", "args": {"filename": "notes.txt"}}`}}
	p := planner.New(completer, planner.Options{OutputLimit: 10})

	got, err := p.Plan(context.Background(), engine.PlanRequest{
		TaskID:    "t1",
		Objective: "summarize notes.txt",
		History: []models.Step{{
			Index:     0,
			Pack:      "write_file",
			Status:    models.StepFailed,
			Output:    "0123456789abcdef",
			Error:     "permission denied",
			ErrorKind: models.ErrorKindPack,
		}},
		Packs: []pack.Descriptor{{
			Name:        "read_file",
			Description: "Reads a file from the workspace",
			InputSchema: pack.Object([]string{"filename"}, map[string]pack.Property{"filename": pack.StringProp("file to read")}),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "read_file", got.Pack)
	assert.Equal(t, "notes.txt", got.Args["filename"])

	require.Len(t, completer.inputs, 1)
	in := completer.inputs[0]
	assert.Equal(t, "summarize notes.txt", in["Objective"])
	assert.Contains(t, in["Packs"], "- read_file: Reads a file from the workspace")
	assert.Contains(t, in["Packs"], "filename (string): file to read")
	assert.Contains(t, in["History"], `"error_kind":"pack_error"`)
	assert.Contains(t, in["History"], "0123456789...(truncated)")
	assert.NotContains(t, in["History"], "abcdef")
}

func TestLLM_PlanTruncatesOnCharacterBoundary(t *testing.T) {
	t.Parallel()
	completer := &fakeCompleter{answers: []string{`{"pack": "os_info", "args": {}}`}}
	p := planner.New(completer, planner.Options{OutputLimit: 10})

	_, err := p.Plan(context.Background(), engine.PlanRequest{
		TaskID:    "t1",
		Objective: "read the greeting",
		History:   []models.Step{{Index: 0, Pack: "read_file", Status: models.StepSucceeded, Output: "aéééééé"}},
	})
	require.NoError(t, err)

	require.Len(t, completer.inputs, 1)
	history := completer.inputs[0]["History"].(string)
	assert.Contains(t, history, "aéééé...(truncated)")
	assert.NotContains(t, history, `\ufffd`)
}

func TestLLM_PlanRetriesBadAnswers(t *testing.T) {
	t.Parallel()
	completer := &fakeCompleter{
		errs:    []error{errors.New("rate limited")},
		answers: []string{"", "no json here", `{"pack": "os_info"}`},
	}
	p := planner.New(completer, planner.Options{MaxRetries: 3, InitialBackoff: time.Millisecond})

	got, err := p.Plan(context.Background(), engine.PlanRequest{Objective: "which os"})
	require.NoError(t, err)
	assert.Equal(t, "os_info", got.Pack)
	assert.Len(t, completer.inputs, 3)
}

func TestLLM_PlanGivesUp(t *testing.T) {
	t.Parallel()
	completer := &fakeCompleter{answers: []string{"still thinking"}}
	p := planner.New(completer, planner.Options{MaxRetries: 1, InitialBackoff: time.Millisecond})

	_, err := p.Plan(context.Background(), engine.PlanRequest{Objective: "which os"})
	assert.ErrorIs(t, err, planner.ErrBadAnswer)
	assert.Len(t, completer.inputs, 2)
}

func TestLLM_PlanStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := &fakeCompleter{errs: []error{context.Canceled}, answers: []string{`{"pack": "os_info"}`}}
	p := planner.New(completer, planner.Options{MaxRetries: 5, InitialBackoff: time.Millisecond})

	_, err := p.Plan(ctx, engine.PlanRequest{Objective: "which os"})
	assert.Error(t, err)
	assert.LessOrEqual(t, len(completer.inputs), 1)
}
