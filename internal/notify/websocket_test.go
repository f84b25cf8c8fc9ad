package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-autoagent/pkg/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsAndFilters(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	onlyT2 := dial(t, srv, "?task_id=t2")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	idx := 0
	require.NoError(t, hub.Publish(context.Background(), models.Event{Type: models.EventStepCompleted, TaskID: "t1", StepIndex: &idx, Pack: "os_info"}))
	require.NoError(t, hub.Publish(context.Background(), models.Event{Type: models.EventTaskFinished, TaskID: "t2", Status: models.TaskCompleted}))

	read := func(conn *websocket.Conn) models.Event {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var e models.Event
		require.NoError(t, json.Unmarshal(msg, &e))
		return e
	}

	first := read(all)
	assert.Equal(t, "t1", first.TaskID)
	require.NotNil(t, first.StepIndex)
	assert.Equal(t, 0, *first.StepIndex)
	assert.Equal(t, "os_info", first.Pack)
	assert.Equal(t, "t2", read(all).TaskID)

	filtered := read(onlyT2)
	assert.Equal(t, models.EventTaskFinished, filtered.Type)
	assert.Equal(t, models.TaskCompleted, filtered.Status)
}

func TestHub_ForgetsClosedClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, hub.Publish(context.Background(), models.Event{TaskID: "t1"}))
}
