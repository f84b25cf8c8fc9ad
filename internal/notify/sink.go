// Package notify delivers task and step events to observers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"sync"

	"github.com/rs/zerolog"
)

var ErrPublish = errors.New("event publish failed")

// Sink receives events after the state they describe has been persisted.
type Sink interface {
	Publish(ctx context.Context, event models.Event) error
}

// Multi fans an event out to every sink and joins their failures.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event models.Event) error {
	var errs error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, event); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w: %T: %w", ErrPublish, s, err))
		}
	}
	return errs
}

// Log writes events to a logger at debug level.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Publish(_ context.Context, event models.Event) error {
	e := l.Logger.Debug().
		Str(logger.EventField, string(event.Type)).
		Str(logger.TaskIDField, event.TaskID).
		Str(logger.StatusField, string(event.Status))
	if event.StepIndex != nil {
		e = e.Int(logger.StepIndexField, *event.StepIndex).Str(logger.PackField, event.Pack)
	}
	e.Msg("event")
	return nil
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.RWMutex
	events []models.Event
}

var _ Sink = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{events: make([]models.Event, 0)}
}

func (r *Recorder) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}
