package events

import (
	"fmt"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TaskStartedEvent{Project: "proj-1", ID: "task-1", AgentRole: "backend", Attempt: 1, Timestamp: time.Now()})

	received := receive(t, ch)
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type %q, got %q", EventTypeTaskStarted, received.EventType())
	}
	if received.ProjectID() != "proj-1" {
		t.Errorf("expected project 'proj-1', got %q", received.ProjectID())
	}
	if started, ok := received.(TaskStartedEvent); !ok || started.ID != "task-1" {
		t.Errorf("unexpected event %#v", received)
	}
}

// TestMultipleSubscribers verifies every subscriber of a topic receives the event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicGate, 10)
	ch2 := bus.Subscribe(TopicGate, 10)

	bus.Publish(GateWaitingEvent{Project: "p", Gate: "production_approval"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		ev := receive(t, ch)
		if ev.EventType() != EventTypeGateWaiting {
			t.Errorf("subscriber %d: got %s", i+1, ev.EventType())
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are full.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskCompletedEvent{ID: fmt.Sprintf("task-%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	// Only the first event fits in the buffer
	ev := receive(t, ch)
	if ev.(TaskCompletedEvent).ID != "task-0" {
		t.Errorf("expected first event to be kept, got %#v", ev)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected remaining events to be dropped, got %#v", extra)
	default:
	}
}

// TestCloseSignalsSubscribers verifies Close closes subscriber channels and is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		if _, ok := <-c; ok {
			t.Error("expected closed channel")
		}
	}

	// Publishing after close must not panic
	bus.Publish(NotificationEvent{Message: "late"})

	// Subscribing after close yields a closed channel
	if _, ok := <-bus.Subscribe(TopicTask, 1); ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
}

// TestTopicIsolation verifies topic subscribers only see their topic while SubscribeAll sees everything.
func TestTopicIsolation(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	workflowCh := bus.Subscribe(TopicWorkflow, 10)
	allCh := bus.SubscribeAll(10)

	bus.Publish(TaskBlockedEvent{Project: "p", ID: "t1", Reason: "dependency failed"})
	bus.Publish(ProgressEvent{Project: "p", Total: 5, Completed: 2})

	if ev := receive(t, taskCh); ev.EventType() != EventTypeTaskBlocked {
		t.Errorf("task channel got %s", ev.EventType())
	}
	if ev := receive(t, workflowCh); ev.EventType() != EventTypeProgress {
		t.Errorf("workflow channel got %s", ev.EventType())
	}

	select {
	case ev := <-taskCh:
		t.Errorf("task channel received unexpected %s", ev.EventType())
	case <-time.After(10 * time.Millisecond):
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[receive(t, allCh).EventType()] = true
	}
	if !got[EventTypeTaskBlocked] || !got[EventTypeProgress] {
		t.Errorf("SubscribeAll received %v", got)
	}
}

// TestNilBusPublish verifies a nil bus can be published to.
func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(PhaseChangedEvent{Phase: "build"})
}
