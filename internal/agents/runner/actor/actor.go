package actor

import (
	"context"
	"go-autoagent/internal/agents/runner/handler"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/messages"
	"go-autoagent/pkg/models"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Runner drives one task by calling the engine until the task is terminal, the
// step budget is spent, or it is told to stop. Steps run off the mailbox so
// status requests are answered while a step is in flight.
type Runner struct {
	root     *actor.RootContext
	handler  *handler.Handler
	limiter  *rate.Limiter
	ctx      context.Context
	cancel   context.CancelFunc
	taskID   string
	state    models.State
	status   models.TaskStatus
	maxSteps int
	executed int
	inFlight bool
	err      *models.Error
}

// NewProducer returns the producer the actor system spawns runners from. root is
// used to deliver step results back to the runner from the step goroutine.
func NewProducer(root *actor.RootContext, h *handler.Handler, stepsPerSecond float64) actor.Producer {
	return func() actor.Actor {
		limit := rate.Inf
		if stepsPerSecond > 0 {
			limit = rate.Limit(stepsPerSecond)
		}
		return &Runner{
			root:    root,
			handler: h,
			limiter: rate.NewLimiter(limit, 1),
			state:   models.Init,
		}
	}
}

func (agent *Runner) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{
		logger.ActorIDField:   ac.Self().GetId(),
		logger.AgentNameField: "runner",
		logger.TaskIDField:    agent.taskID,
	}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
		agent.ctx, agent.cancel = context.WithCancel(context.Background())
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
		agent.cancel()
	case *actor.Stopped:
		l.Debug().Msg("stopped actor")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case messages.RunTask:
		l.Debug().Str(logger.TaskIDField, msg.TaskID).Msgf("RunTask received: %v", msg)
		if agent.inFlight || (agent.taskID != "" && !agent.state.Done()) {
			l.Warn().Msg("already running, ignoring RunTask")
			return
		}
		agent.cancel()
		agent.ctx, agent.cancel = context.WithCancel(context.Background())
		agent.taskID = msg.TaskID
		agent.maxSteps = msg.MaxSteps
		agent.executed = 0
		agent.err = nil
		agent.state = models.Idle
		ac.Send(ac.Self(), messages.NextStep{})
	case messages.NextStep:
		agent.next(ac, l)
	case messages.StepResult:
		agent.inFlight = false
		agent.status = msg.Task.Status
		if msg.Step != nil {
			agent.executed++
			l.Info().
				Int(logger.StepIndexField, msg.Step.Index).
				Str(logger.PackField, msg.Step.Pack).
				Str(logger.StatusField, string(msg.Step.Status)).
				Msg("step done")
		}
		if agent.state == models.Stopped {
			return
		}
		if msg.Task.Status.Terminal() {
			agent.state = models.Finished
			l.Info().Str(logger.StatusField, string(msg.Task.Status)).Msg("work complete!")
			return
		}
		agent.state = models.Idle
		ac.Send(ac.Self(), messages.NextStep{})
	case messages.ReportError:
		agent.inFlight = false
		if agent.state == models.Stopped {
			return
		}
		l.Error().Str("error", msg.Error.ErrMessage).Msg("run failed")
		agent.err = &msg.Error
		agent.state = models.Failed
	case messages.StopRun:
		l.Debug().Msg("StopRun received")
		if !agent.state.Done() {
			agent.state = models.Stopped
		}
		agent.cancel()
		ac.Respond(agent.runStatus())
	case messages.GetStatus:
		ac.Respond(agent.runStatus())
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}

func (agent *Runner) next(ac actor.Context, l zerolog.Logger) {
	if agent.state.Done() || agent.inFlight {
		return
	}
	if agent.maxSteps > 0 && agent.executed >= agent.maxSteps {
		agent.state = models.Stopped
		t := time.Now()
		agent.err = &models.Error{ErrMessage: "step budget exhausted", Time: &t}
		l.Warn().Int("max_steps", agent.maxSteps).Msg("step budget exhausted")
		return
	}

	agent.state = models.Thinking
	agent.inFlight = true
	self := ac.Self()
	ctx, taskID := agent.ctx, agent.taskID
	go func() {
		if err := agent.limiter.Wait(ctx); err != nil {
			agent.report(self, err)
			return
		}
		res, err := agent.handler.Step(ctx, taskID)
		if err != nil {
			agent.report(self, err)
			return
		}
		agent.root.Send(self, messages.StepResult{Step: res.Step, Task: res.Task})
	}()
}

// report runs on the step goroutine and only touches immutable fields.
func (agent *Runner) report(self *actor.PID, err error) {
	t := time.Now()
	agent.root.Send(self, messages.ReportError{Error: models.Error{ErrMessage: err.Error(), Time: &t}})
}

func (agent *Runner) runStatus() models.RunStatus {
	return models.RunStatus{
		TaskID:        agent.taskID,
		State:         agent.state,
		TaskStatus:    agent.status,
		StepsExecuted: agent.executed,
		MaxSteps:      agent.maxSteps,
		Errs:          agent.err,
	}
}
