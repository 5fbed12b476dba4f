package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aristath/pbvs/internal/events"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, projectID, message string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "project_id", projectID, "message", message)
	return nil
}

// BusNotifier publishes notifications as events.
type BusNotifier struct {
	Bus *events.EventBus
}

func (n BusNotifier) Notify(_ context.Context, projectID, message string) error {
	n.Bus.Publish(events.NotificationEvent{
		Project:   projectID,
		Message:   message,
		Timestamp: time.Now(),
	})
	return nil
}

// NATSNotifier publishes notifications as JSON on a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

type natsNotification struct {
	ProjectID string    `json:"project_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNATSNotifier connects to url. subject defaults to "pbvs.notifications".
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	if subject == "" {
		subject = "pbvs.notifications"
	}
	conn, err := nats.Connect(url,
		nats.Name("pbvs"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: subject}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, projectID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(natsNotification{
		ProjectID: projectID,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}

// MultiNotifier delivers to every notifier, even when some fail.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, projectID, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, projectID, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &NotificationError{Err: errors.Join(errs...)}
	}
	return nil
}
