// Package pack defines the capability contract shared by every tool the planner may
// choose, and the registry that resolves them by name.
package pack

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/workspace"
)

var (
	ErrDuplicatePack    = errors.New("pack already registered")
	ErrUnknownPack      = errors.New("unknown pack")
	ErrPackDisabled     = errors.New("pack is disabled")
	ErrPackNameEmpty    = errors.New("pack name is empty")
	ErrSchemaValidation = errors.New("schema validation failed")
)

// Descriptor is what the planner sees of a pack.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	InputSchema Schema   `json:"input_schema,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	// Background packs return a handle immediately; a status pack is used to follow up.
	Background bool `json:"background,omitempty"`
	ReadOnly   bool `json:"read_only,omitempty"`
}

func (d Descriptor) HasCategory(category string) bool {
	for _, c := range d.Categories {
		if equalFold(c, category) {
			return true
		}
	}
	return false
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.Categories = append([]string(nil), d.Categories...)
	return out
}

// Invocation is the context a pack body runs with. Args are already validated.
type Invocation struct {
	TaskID    string
	Objective string
	StepIndex int
	Workspace workspace.Handle
	Args      map[string]any
}

func (in Invocation) String(key string) string {
	v, _ := in.Args[key].(string)
	return v
}

func (in Invocation) Bool(key string, def bool) bool {
	if v, ok := in.Args[key].(bool); ok {
		return v
	}
	return def
}

type Output struct {
	Text   string
	Data   map[string]any
	Handle string
}

func Text(format string, args ...any) Output {
	return Output{Text: fmt.Sprintf(format, args...)}
}

// Pack is one capability. Invoke may be read-only or side-effecting and is never retried.
type Pack interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, in Invocation) (Output, error)
}

// Error is a failure a pack declares about its own work, as opposed to a crash.
type Error struct {
	Pack string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Pack, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Pack, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Errorf(pack string, err error, format string, args ...any) *Error {
	return &Error{Pack: pack, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Func adapts a descriptor and a function into a Pack.
type Func struct {
	Desc Descriptor
	Fn   func(ctx context.Context, in Invocation) (Output, error)
}

func (f Func) Descriptor() Descriptor {
	return f.Desc
}

func (f Func) Invoke(ctx context.Context, in Invocation) (Output, error) {
	return f.Fn(ctx, in)
}
