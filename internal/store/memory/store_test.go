package memory_test

import (
	"context"
	"testing"

	"go-autoagent/internal/store"
	"go-autoagent/internal/store/memory"
	"go-autoagent/internal/store/storetest"
	"go-autoagent/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return memory.New() })
}

func TestStore_LoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateTask(ctx, models.Task{ID: "t1", Status: models.TaskCreated}))
	require.NoError(t, s.AppendStep(ctx, "t1", models.Step{Index: 0, Pack: "os_info", Args: map[string]any{"a": "b"}}))

	got, err := s.LoadTask(ctx, "t1")
	require.NoError(t, err)
	got.Steps[0].Args["a"] = "mutated"
	got.Steps = append(got.Steps, models.Step{Index: 1})

	again, err := s.LoadTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, again.Steps, 1)
	assert.Equal(t, "b", again.Steps[0].Args["a"])
}

func TestStore_NestedArgsAreNotShared(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateTask(ctx, models.Task{ID: "t1", Status: models.TaskCreated}))

	args := map[string]any{"opts": map[string]any{"recursive": true}}
	require.NoError(t, s.AppendStep(ctx, "t1", models.Step{Index: 0, Pack: "list_files", Args: args}))
	args["opts"].(map[string]any)["recursive"] = false

	got, err := s.LoadTask(ctx, "t1")
	require.NoError(t, err)
	got.Steps[0].Args["opts"].(map[string]any)["recursive"] = "mutated"

	again, err := s.LoadTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, true, again.Steps[0].Args["opts"].(map[string]any)["recursive"])
}
