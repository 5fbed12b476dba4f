package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	ProjectID() string
}

// Topic constants
const (
	TopicWorkflow     = "workflow"
	TopicTask         = "task"
	TopicGate         = "gate"
	TopicNotification = "notification"
)

// Event type constants
const (
	EventTypePhaseChanged  = "workflow.phase"
	EventTypeProgress      = "workflow.progress"
	EventTypeControl       = "workflow.control"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskRetrying  = "task.retrying"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskBlocked   = "task.blocked"
	EventTypeGateWaiting   = "gate.waiting"
	EventTypeGateReleased  = "gate.released"
	EventTypeNotification  = "notification"
)

// PhaseChangedEvent is published when the workflow enters a new status.
type PhaseChangedEvent struct {
	Project   string
	Phase     string
	Status    string
	Timestamp time.Time
}

func (e PhaseChangedEvent) EventType() string { return EventTypePhaseChanged }
func (e PhaseChangedEvent) Topic() string     { return TopicWorkflow }
func (e PhaseChangedEvent) ProjectID() string { return e.Project }

// ProgressEvent is published whenever a task finishes.
type ProgressEvent struct {
	Project    string
	Total      int
	Completed  int
	Failed     int
	Blocked    int
	InProgress int
	Timestamp  time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) Topic() string     { return TopicWorkflow }
func (e ProgressEvent) ProjectID() string { return e.Project }

// ControlEvent is published when a signal is accepted.
type ControlEvent struct {
	Project   string
	Signal    string
	Payload   string
	Timestamp time.Time
}

func (e ControlEvent) EventType() string { return EventTypeControl }
func (e ControlEvent) Topic() string     { return TopicWorkflow }
func (e ControlEvent) ProjectID() string { return e.Project }

// TaskStartedEvent is published when a task attempt begins.
type TaskStartedEvent struct {
	Project   string
	ID        string
	Name      string
	AgentRole string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) ProjectID() string { return e.Project }

// TaskRetryingEvent is published when a failed attempt will be retried.
type TaskRetryingEvent struct {
	Project   string
	ID        string
	Attempt   int
	Delay     time.Duration
	Reason    string
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) Topic() string     { return TopicTask }
func (e TaskRetryingEvent) ProjectID() string { return e.Project }

// TaskCompletedEvent is published when a worker reports a task complete.
type TaskCompletedEvent struct {
	Project   string
	ID        string
	Summary   string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) ProjectID() string { return e.Project }

// TaskFailedEvent is published when a task ends failed.
type TaskFailedEvent struct {
	Project   string
	ID        string
	Reason    string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) ProjectID() string { return e.Project }

// TaskBlockedEvent is published when a task ends blocked, either by its
// worker or because a dependency did not complete.
type TaskBlockedEvent struct {
	Project   string
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) Topic() string     { return TopicTask }
func (e TaskBlockedEvent) ProjectID() string { return e.Project }

// GateWaitingEvent is published when the workflow starts holding at a gate.
type GateWaitingEvent struct {
	Project   string
	Gate      string
	Reason    string
	Timestamp time.Time
}

func (e GateWaitingEvent) EventType() string { return EventTypeGateWaiting }
func (e GateWaitingEvent) Topic() string     { return TopicGate }
func (e GateWaitingEvent) ProjectID() string { return e.Project }

// GateReleasedEvent is published when a gate lets the workflow continue.
type GateReleasedEvent struct {
	Project   string
	Gate      string
	Timestamp time.Time
}

func (e GateReleasedEvent) EventType() string { return EventTypeGateReleased }
func (e GateReleasedEvent) Topic() string     { return TopicGate }
func (e GateReleasedEvent) ProjectID() string { return e.Project }

// NotificationEvent carries a human-readable notification.
type NotificationEvent struct {
	Project   string
	Message   string
	Timestamp time.Time
}

func (e NotificationEvent) EventType() string { return EventTypeNotification }
func (e NotificationEvent) Topic() string     { return TopicNotification }
func (e NotificationEvent) ProjectID() string { return e.Project }
