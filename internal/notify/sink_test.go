package notify

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go-autoagent/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Publish(context.Context, models.Event) error {
	return errors.New("broker down")
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, failingSink{}, nil, b}

	event := models.TaskEvent(models.EventTaskCreated, models.Task{ID: "t1", Status: models.TaskCreated}, time.Now())
	err := m.Publish(context.Background(), event)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestRecorder_RespectsCancelledContext(t *testing.T) {
	r := NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Publish(ctx, models.Event{}), context.Canceled)
	assert.Empty(t, r.Events())
}

func TestLog_NeverFails(t *testing.T) {
	idx := 2
	l := Log{Logger: zerolog.New(os.Stderr)}
	assert.NoError(t, l.Publish(context.Background(), models.Event{Type: models.EventStepCompleted, TaskID: "t", StepIndex: &idx}))
}
