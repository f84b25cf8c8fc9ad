// Package storetest is the behaviour every store.Repository must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go-autoagent/internal/store"
	"go-autoagent/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(objective string) models.Task {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Task{
		ID:        uuid.NewString(),
		Objective: objective,
		Status:    models.TaskCreated,
		Workspace: "/tmp/ws",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newStep(taskID string, index int) models.Step {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Step{
		ID:        fmt.Sprintf("%s-%d", taskID[:8], index),
		TaskID:    taskID,
		Index:     index,
		Pack:      "os_info",
		Args:      map[string]any{"verbose": true},
		Thoughts:  "check the os",
		Status:    models.StepSucceeded,
		Output:    fmt.Sprintf("output %d", index),
		StartedAt: now,
		EndedAt:   now,
	}
}

// Run exercises repo. newRepo is called once per subtest.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("find today's date")
		require.NoError(t, repo.CreateTask(ctx, task))

		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, task.Objective, got.Objective)
		assert.Equal(t, models.TaskCreated, got.Status)
		assert.Empty(t, got.Steps)
		assert.Nil(t, got.Plan)

		assert.ErrorIs(t, repo.CreateTask(ctx, task), store.ErrTaskExists)
	})

	t.Run("unknown task", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.LoadTask(ctx, uuid.NewString())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.ErrorIs(t, repo.AppendStep(ctx, uuid.NewString(), newStep(uuid.NewString(), 0)), store.ErrTaskNotFound)
		assert.ErrorIs(t, repo.UpdateTaskStatus(ctx, uuid.NewString(), models.TaskFailed, ""), store.ErrTaskNotFound)
		assert.ErrorIs(t, repo.DeleteTask(ctx, uuid.NewString()), store.ErrTaskNotFound)
	})

	t.Run("append is contiguous", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("append")
		require.NoError(t, repo.CreateTask(ctx, task))

		require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 0)))
		require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 1)))
		assert.ErrorIs(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 1)), store.ErrIndexConflict)
		assert.ErrorIs(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 5)), store.ErrIndexConflict)

		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskInProgress, got.Status)
		require.Len(t, got.Steps, 2)
		for i, s := range got.Steps {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, "os_info", s.Pack)
			assert.Equal(t, map[string]any{"verbose": true}, s.Args)
			assert.Equal(t, models.StepSucceeded, s.Status)
		}
	})

	t.Run("truncate drops trailing steps and plan", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("truncate")
		require.NoError(t, repo.CreateTask(ctx, task))
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, i)))
		}
		require.NoError(t, repo.SavePlan(ctx, task.ID, &models.Plan{
			Text:    "write the file",
			Action:  &models.Action{Pack: "write_file", Args: map[string]any{"path": "a"}},
			ForStep: 3,
		}))

		require.NoError(t, repo.TruncateSteps(ctx, task.ID, 1, ""))
		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, 1, got.Steps[1].Index)
		assert.Nil(t, got.Plan)
		assert.Equal(t, models.TaskInProgress, got.Status)

		require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 2)))
	})

	t.Run("append leaves a finished task alone", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("finished")
		require.NoError(t, repo.CreateTask(ctx, task))
		require.NoError(t, repo.UpdateTaskStatus(ctx, task.ID, models.TaskFailed, "gave up"))

		require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, 0)))
		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskFailed, got.Status)
		assert.Equal(t, "gave up", got.Conclusion)
	})

	t.Run("truncate reopens with status", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("reopen")
		require.NoError(t, repo.CreateTask(ctx, task))
		for i := 0; i < 2; i++ {
			require.NoError(t, repo.AppendStep(ctx, task.ID, newStep(task.ID, i)))
		}
		require.NoError(t, repo.UpdateTaskStatus(ctx, task.ID, models.TaskCompleted, "done"))

		require.NoError(t, repo.TruncateSteps(ctx, task.ID, 0, models.TaskInProgress))
		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, models.TaskInProgress, got.Status)
		assert.Empty(t, got.Conclusion)

		assert.ErrorIs(t, repo.TruncateSteps(ctx, uuid.NewString(), 0, models.TaskInProgress), store.ErrTaskNotFound)
	})

	t.Run("status and plan", func(t *testing.T) {
		repo := newRepo(t)
		task := newTask("status")
		require.NoError(t, repo.CreateTask(ctx, task))

		require.NoError(t, repo.UpdateTaskStatus(ctx, task.ID, models.TaskCompleted, "done"))
		plan := &models.Plan{Text: "finish", Directive: models.DirectiveCompleted, Reason: "done", ForStep: 0}
		require.NoError(t, repo.SavePlan(ctx, task.ID, plan))

		got, err := repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, got.Status)
		assert.Equal(t, "done", got.Conclusion)
		require.NotNil(t, got.Plan)
		assert.Equal(t, "finish", got.Plan.Text)
		assert.Equal(t, models.DirectiveCompleted, got.Plan.Directive)

		require.NoError(t, repo.SavePlan(ctx, task.ID, nil))
		got, err = repo.LoadTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Plan)
	})

	t.Run("list and delete", func(t *testing.T) {
		repo := newRepo(t)
		a, b := newTask("a"), newTask("b")
		b.CreatedAt = a.CreatedAt.Add(time.Second)
		require.NoError(t, repo.CreateTask(ctx, a))
		require.NoError(t, repo.CreateTask(ctx, b))
		require.NoError(t, repo.AppendStep(ctx, b.ID, newStep(b.ID, 0)))

		list, err := repo.ListTasks(ctx)
		require.NoError(t, err)
		ids := map[string]int{}
		for _, s := range list {
			ids[s.ID] = s.StepCount
		}
		assert.Equal(t, 0, ids[a.ID])
		assert.Equal(t, 1, ids[b.ID])

		require.NoError(t, repo.DeleteTask(ctx, b.ID))
		_, err = repo.LoadTask(ctx, b.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
