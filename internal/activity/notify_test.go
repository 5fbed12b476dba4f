package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pbvs/internal/events"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, string, string) error {
	f.calls++
	return errors.New("sink down")
}

func TestBusNotifier(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	ch := bus.Subscribe(events.TopicNotification, 1)

	require.NoError(t, BusNotifier{Bus: bus}.Notify(context.Background(), "proj-1", "Starting project: shop"))

	select {
	case ev := <-ch:
		n, ok := ev.(events.NotificationEvent)
		require.True(t, ok)
		assert.Equal(t, "proj-1", n.Project)
		assert.Equal(t, "Starting project: shop", n.Message)
	case <-time.After(time.Second):
		t.Fatal("no notification event")
	}
}

func TestMultiNotifier_DeliversToAllAndAggregates(t *testing.T) {
	a, b := &failingNotifier{}, &failingNotifier{}
	m := MultiNotifier{a, LogNotifier{}, b}

	err := m.Notify(context.Background(), "p", "hello")

	var ne *NotificationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.NoError(t, MultiNotifier{LogNotifier{}}.Notify(context.Background(), "p", "hello"))
}

func TestNewNATSNotifier_ConnectError(t *testing.T) {
	_, err := NewNATSNotifier("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}
