package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go-autoagent/internal/engine"
	"go-autoagent/internal/pack"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/messages"
	"go-autoagent/pkg/models"
	"io"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const statusTimeout = 5 * time.Second

// TaskService is the part of the engine the API exposes.
type TaskService interface {
	CreateTask(ctx context.Context, objective string) (models.Task, error)
	GetTask(ctx context.Context, taskID string) (models.Task, error)
	ListTasks(ctx context.Context) ([]models.TaskSummary, error)
	DeleteTask(ctx context.Context, taskID string) error
	ExecuteNextStep(ctx context.Context, taskID string) (engine.StepResult, error)
	ListSteps(ctx context.Context, taskID string) ([]models.Step, error)
	GetStep(ctx context.Context, taskID, ref string) (models.Step, error)
	Rewind(ctx context.Context, taskID string, target int) (models.Task, error)
	Packs(categories ...string) []pack.Descriptor
}

type Dependencies struct {
	Tasks TaskService
	Root  *actor.RootContext
	// Runner produces the actor that autoruns a task.
	Runner        actor.Producer
	Notifications http.Handler
	Metrics       http.Handler
	MaxSteps      int
	Addr          string
}

type createTask struct {
	Input     string `json:"input"`
	Objective string `json:"objective"`
}

type rewindRequest struct {
	StepIndex *int `json:"step_index"`
}

type runRequest struct {
	MaxSteps int `json:"max_steps"`
}

type stepResponse struct {
	TaskID     string            `json:"task_id"`
	TaskStatus models.TaskStatus `json:"task_status"`
	Step       *models.Step      `json:"step"`
	IsLast     bool              `json:"is_last"`
	Conclusion string            `json:"conclusion,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	ac       *actor.RootContext
	tasks    TaskService
	runner   actor.Producer
	maxSteps int
	runs     *runsCache
	handler  http.Handler
	server   *http.Server
}

func New(deps Dependencies) *Server {
	s := &Server{
		ac:       deps.Root,
		tasks:    deps.Tasks,
		runner:   deps.Runner,
		maxSteps: deps.MaxSteps,
		runs:     newRunsCache(),
	}

	r := chi.NewRouter()
	r.Use(logMiddleware())

	r.Route("/agent", func(r chi.Router) {
		r.Get("/packs", s.listPacks)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/", s.listTasks)
			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Delete("/", s.deleteTask)
				r.Post("/steps", s.executeStep)
				r.Get("/steps", s.listSteps)
				r.Get("/steps/{stepID}", s.getStep)
				r.Post("/rewind", s.rewind)
				r.Post("/run", s.startRun)
				r.Get("/run", s.getRun)
				r.Delete("/run", s.stopRun)
			})
		})
	})
	if deps.Notifications != nil {
		r.Handle("/notifications", deps.Notifications)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	s.handler = r
	s.server = &http.Server{
		Addr:              deps.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the http server down and stops every runner actor.
func (s *Server) Stop(ctx context.Context) error {
	for _, pid := range s.runs.all() {
		s.ac.Stop(pid)
	}
	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	cmd := createTask{}
	if err := unmarshalRequestBody(r, &cmd); err != nil {
		log.Debug().Err(err).Msg("cannot parse body")
		respondError(w, r, http.StatusBadRequest, errors.New("unable to parse body"))
		return
	}
	objective := cmd.Objective
	if objective == "" {
		objective = cmd.Input
	}

	task, err := s.tasks.CreateTask(r.Context(), objective)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, struct {
		Tasks []models.TaskSummary `json:"tasks"`
	}{tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if pid, ok := s.runs.remove(id); ok {
		s.ac.Stop(pid)
	}
	if err := s.tasks.DeleteTask(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	res, err := s.tasks.ExecuteNextStep(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, stepResponse{
		TaskID:     res.Task.ID,
		TaskStatus: res.Task.Status,
		Step:       res.Step,
		IsLast:     res.Task.Status.Terminal(),
		Conclusion: res.Task.Conclusion,
	})
}

func (s *Server) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.tasks.ListSteps(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, struct {
		Steps []models.Step `json:"steps"`
	}{steps})
}

func (s *Server) getStep(w http.ResponseWriter, r *http.Request) {
	step, err := s.tasks.GetStep(r.Context(), chi.URLParam(r, "taskID"), chi.URLParam(r, "stepID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, step)
}

func (s *Server) rewind(w http.ResponseWriter, r *http.Request) {
	req := rewindRequest{}
	if err := unmarshalRequestBody(r, &req); err != nil || req.StepIndex == nil {
		respondError(w, r, http.StatusBadRequest, errors.New("body must carry step_index"))
		return
	}
	id := chi.URLParam(r, "taskID")
	if s.running(id) {
		respondError(w, r, http.StatusConflict, errors.New("task is being autorun, stop it first"))
		return
	}
	task, err := s.tasks.Rewind(r.Context(), id, *req.StepIndex)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, task)
}

func (s *Server) listPacks(w http.ResponseWriter, r *http.Request) {
	categories := r.URL.Query()["category"]
	render.JSON(w, r, struct {
		Packs []pack.Descriptor `json:"packs"`
	}{s.tasks.Packs(categories...)})
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	req := runRequest{MaxSteps: s.maxSteps}
	if r.ContentLength != 0 {
		if err := unmarshalRequestBody(r, &req); err != nil {
			respondError(w, r, http.StatusBadRequest, errors.New("unable to parse body"))
			return
		}
	}

	if s.running(id) {
		respondError(w, r, http.StatusConflict, errors.New("task is already running"))
		return
	}
	task, err := s.tasks.GetTask(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if task.Status.Terminal() {
		s.fail(w, r, fmt.Errorf("%w: %s is %s", engine.ErrTaskTerminal, id, task.Status))
		return
	}
	if pid, ok := s.runs.remove(id); ok {
		s.ac.Stop(pid)
	}

	decider := func(reason interface{}) actor.Directive {
		log.Error().Str(logger.TaskIDField, id).Msgf("handling failure for runner. reason: %v", reason)
		return actor.RestartDirective
	}
	strategy := actor.NewOneForOneStrategy(3, 10000, decider)
	props := actor.PropsFromProducer(s.runner, actor.WithSupervisor(strategy))
	pid := s.ac.Spawn(props)
	s.ac.Send(pid, messages.RunTask{TaskID: id, MaxSteps: req.MaxSteps})
	s.runs.add(id, pid)

	log.Debug().Str(logger.TaskIDField, id).Msg("autorun has been started")
	status, err := s.runStatus(pid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, status)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	pid, ok := s.runs.get(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, errors.New("task has no autorun"))
		return
	}
	status, err := s.runStatus(pid)
	if err != nil {
		s.runs.remove(id)
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	pid, ok := s.runs.get(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, errors.New("task has no autorun"))
		return
	}
	res, err := s.ac.RequestFuture(pid, messages.StopRun{}, statusTimeout).Result()
	if err != nil {
		s.runs.remove(id)
		s.fail(w, r, fmt.Errorf("stop runner: %w", err))
		return
	}
	status, ok := res.(models.RunStatus)
	if !ok {
		s.fail(w, r, fmt.Errorf("unknown status from actor: %T", res))
		return
	}
	render.JSON(w, r, status)
}

func (s *Server) running(id string) bool {
	pid, ok := s.runs.get(id)
	if !ok {
		return false
	}
	status, err := s.runStatus(pid)
	return err == nil && !status.State.Done()
}

func (s *Server) runStatus(pid *actor.PID) (models.RunStatus, error) {
	future := s.ac.RequestFuture(pid, messages.GetStatus{}, statusTimeout) // blocking
	res, err := future.Result()
	if err != nil {
		return models.RunStatus{}, fmt.Errorf("get status from actor: %w", err)
	}
	status, ok := res.(models.RunStatus)
	if !ok {
		return models.RunStatus{}, fmt.Errorf("unknown status from actor: %T", res)
	}
	return status, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	respondError(w, r, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrTaskNotFound), errors.Is(err, engine.ErrStepNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrTaskTerminal), errors.Is(err, engine.ErrTaskBusy):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidRewindTarget), errors.Is(err, engine.ErrEmptyObjective):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrPlanner):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, code int, err error) {
	render.Status(r, code)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RefererHandler("referer"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	if err = json.Unmarshal(body, output); err != nil {
		return err
	}

	return nil
}
