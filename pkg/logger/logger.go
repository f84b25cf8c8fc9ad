package logger

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"os"
)

const (
	AgentNameField = "agent"
	ActorIDField   = "actor"
	TaskIDField    = "task"
	StepIndexField = "step"
	StepIDField    = "step_id"
	PackField      = "pack"
	StatusField    = "status"
	EventField     = "event"
	ComponentField = "component"
)

func NewGlobal(level string, pretty bool) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(l)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str(ComponentField, name).Logger()
}
