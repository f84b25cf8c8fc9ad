package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"go-autoagent/pkg/models"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS publishes events on <prefix>.<task id>.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

var _ Sink = (*NATS)(nil)

func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

func NewNATS(conn *nats.Conn, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix}
}

func (n *NATS) Subject(taskID string) string {
	return n.prefix + "." + taskID
}

func (n *NATS) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(event.TaskID), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
