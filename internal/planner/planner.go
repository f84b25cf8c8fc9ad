// Package planner asks a language model for the next step of a task.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-autoagent/internal/engine"
	"go-autoagent/pkg/data"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/prompts"
	"go-autoagent/pkg/template"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/chains"
	langChainPrompt "github.com/tmc/langchaingo/prompts"
)

var (
	ErrEmptyAnswer = errors.New("empty answer")
	ErrBadAnswer   = errors.New("unusable answer")
)

// NextStepPrompt is the langchaingo template behind NewChain.
var NextStepPrompt = langChainPrompt.NewPromptTemplate(prompts.NextStep, []string{"Objective", "Packs", "History"})

// Completer turns prompt inputs into raw model text.
type Completer interface {
	Complete(ctx context.Context, inputs map[string]any) (string, error)
}

// ChainCompleter runs a langchaingo chain and returns its "text" output.
type ChainCompleter struct {
	Chain chains.Chain
}

func (c ChainCompleter) Complete(ctx context.Context, inputs map[string]any) (string, error) {
	completion, err := chains.Call(ctx, c.Chain, inputs)
	if err != nil {
		return "", fmt.Errorf("call: %w", err)
	}
	text, ok := completion["text"].(string)
	if !ok {
		return "", fmt.Errorf("%w: chain returned no text", ErrEmptyAnswer)
	}
	return text, nil
}

// Options tune retries. Zero values fall back to defaults.
type Options struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	// HistoryLimit keeps only the most recent steps in the prompt.
	HistoryLimit int
	// OutputLimit truncates step output shown to the model.
	OutputLimit int
}

// LLM is an engine.Planner backed by a Completer.
type LLM struct {
	completer Completer
	opts      Options
	log       zerolog.Logger
}

var _ engine.Planner = (*LLM)(nil)

func New(completer Completer, opts Options) *LLM {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = 2000
	}
	return &LLM{completer: completer, opts: opts, log: logger.Component("planner")}
}

func (p *LLM) Plan(ctx context.Context, req engine.PlanRequest) (engine.Decision, error) {
	inputs, err := p.inputs(req)
	if err != nil {
		return engine.Decision{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.opts.MaxRetries), ctx)

	var decision engine.Decision
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		answer, err := p.completer.Complete(ctx, inputs)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			p.log.Warn().Err(err).Str(logger.TaskIDField, req.TaskID).Int("attempt", attempt).Msg("completion failed")
			return err
		}
		decision, err = ParseDecision(answer)
		if err != nil {
			p.log.Warn().Err(err).Str(logger.TaskIDField, req.TaskID).Int("attempt", attempt).Msg("unusable answer")
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return engine.Decision{}, err
	}

	p.log.Debug().
		Str(logger.TaskIDField, req.TaskID).
		Str(logger.PackField, decision.Pack).
		Str("directive", string(decision.Directive)).
		Msg("planned next step")
	return decision, nil
}

func (p *LLM) inputs(req engine.PlanRequest) (map[string]any, error) {
	packs, err := template.Parse(prompts.PackList, req.Packs)
	if err != nil {
		return nil, fmt.Errorf("render packs: %w", err)
	}
	history, err := json.Marshal(p.history(req.History))
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return map[string]any{
		"Objective": req.Objective,
		"Packs":     strings.TrimSpace(packs),
		"History":   string(history),
	}, nil
}

type historyEntry struct {
	Index  int            `json:"index"`
	Pack   string         `json:"pack"`
	Args   map[string]any `json:"args,omitempty"`
	Status string         `json:"status"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"error_kind,omitempty"`
}

func (p *LLM) history(steps []models.Step) []historyEntry {
	if len(steps) > p.opts.HistoryLimit {
		steps = steps[len(steps)-p.opts.HistoryLimit:]
	}
	out := make([]historyEntry, 0, len(steps))
	for _, s := range steps {
		out = append(out, historyEntry{
			Index:  s.Index,
			Pack:   s.Pack,
			Args:   s.Args,
			Status: string(s.Status),
			Output: truncate(s.Output, p.opts.OutputLimit),
			Error:  s.Error,
			Kind:   string(s.ErrorKind),
		})
	}
	return out
}

type answer struct {
	Thoughts  string         `json:"thoughts"`
	Plan      string         `json:"plan"`
	Pack      string         `json:"pack"`
	Args      map[string]any `json:"args"`
	Directive string         `json:"directive"`
	Reason    string         `json:"reason"`
}

// ParseDecision reads the model's json answer, tolerating surrounding prose.
func ParseDecision(raw string) (engine.Decision, error) {
	if strings.TrimSpace(raw) == "" {
		return engine.Decision{}, ErrEmptyAnswer
	}
	match, err := data.SanitizeAnswer(raw)
	if err != nil {
		return engine.Decision{}, fmt.Errorf("%w: %w", ErrBadAnswer, err)
	}
	var ans answer
	if err := json.Unmarshal([]byte(match), &ans); err != nil {
		return engine.Decision{}, fmt.Errorf("%w: %w", ErrBadAnswer, err)
	}

	d := engine.Decision{
		Thoughts: strings.TrimSpace(ans.Plan),
		Pack:     strings.TrimSpace(ans.Pack),
		Args:     ans.Args,
		Reason:   strings.TrimSpace(ans.Reason),
	}
	if d.Thoughts == "" {
		d.Thoughts = strings.TrimSpace(ans.Thoughts)
	}

	switch models.Directive(strings.ToLower(strings.TrimSpace(ans.Directive))) {
	case models.DirectiveNone:
	case models.DirectiveCompleted:
		d.Directive = models.DirectiveCompleted
	case models.DirectiveFailed:
		d.Directive = models.DirectiveFailed
	default:
		return engine.Decision{}, fmt.Errorf("%w: unknown directive %q", ErrBadAnswer, ans.Directive)
	}

	if d.Directive != models.DirectiveNone {
		d.Pack = ""
		d.Args = nil
		return d, nil
	}
	if d.Pack == "" {
		return engine.Decision{}, fmt.Errorf("%w: no pack and no directive", ErrBadAnswer)
	}
	if d.Args == nil {
		d.Args = map[string]any{}
	}
	return d, nil
}

// truncate cuts s to at most limit bytes without splitting a character.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
