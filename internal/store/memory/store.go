// Package memory is a Repository kept in process memory, used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"go-autoagent/internal/store"
	"go-autoagent/pkg/models"
	"sort"
	"sync"
	"time"
)

type Store struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
	now   func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{tasks: map[string]models.Task{}, now: time.Now}
}

func (s *Store) CreateTask(_ context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrTaskExists, task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *Store) LoadTask(_ context.Context, taskID string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	return task.Clone(), nil
}

func (s *Store) ListTasks(_ context.Context) ([]models.TaskSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TaskSummary, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) AppendStep(_ context.Context, taskID string, step models.Step) error {
	return s.update(taskID, func(t *models.Task) error {
		if step.Index != len(t.Steps) {
			return fmt.Errorf("%w: task %s has %d steps, got index %d", store.ErrIndexConflict, taskID, len(t.Steps), step.Index)
		}
		t.Steps = append(t.Steps, step.Clone())
		if t.Status == models.TaskCreated {
			t.Status = models.TaskInProgress
		}
		return nil
	})
}

func (s *Store) TruncateSteps(_ context.Context, taskID string, keepThrough int, reopen models.TaskStatus) error {
	return s.update(taskID, func(t *models.Task) error {
		if keepThrough+1 < len(t.Steps) {
			t.Steps = t.Steps[:keepThrough+1]
		}
		t.Plan = nil
		if reopen != "" {
			t.Status = reopen
			t.Conclusion = ""
		}
		return nil
	})
}

func (s *Store) UpdateTaskStatus(_ context.Context, taskID string, status models.TaskStatus, conclusion string) error {
	return s.update(taskID, func(t *models.Task) error {
		t.Status = status
		t.Conclusion = conclusion
		return nil
	})
}

func (s *Store) SavePlan(_ context.Context, taskID string, plan *models.Plan) error {
	return s.update(taskID, func(t *models.Task) error {
		if plan == nil {
			t.Plan = nil
			return nil
		}
		p := plan.Clone()
		t.Plan = &p
		return nil
	})
}

func (s *Store) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *Store) update(taskID string, fn func(t *models.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	next := task.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = s.now().UTC()
	s.tasks[taskID] = next
	return nil
}
