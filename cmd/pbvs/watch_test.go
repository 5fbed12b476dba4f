package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/scheduler"
)

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(evs []events.Event) []string {
	var types []string
	for _, e := range evs {
		types = append(types, e.EventType())
	}
	return types
}

func TestStateMirror(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.SubscribeAll(64)
	m := &stateMirror{bus: bus}
	now := time.Now()

	building := &orchestrator.ProjectState{
		ProjectID:  "p1",
		Status:     orchestrator.StatusBuilding,
		Phase:      orchestrator.PhaseBuild,
		TotalTasks: 2,
		Tasks: []*scheduler.Task{
			{ID: "a", Name: "Design schema", AgentRole: scheduler.RoleArchitect, Status: scheduler.TaskInProgress},
			{ID: "b", Name: "Build API", AgentRole: scheduler.RoleBackend, Status: scheduler.TaskPending, DependsOn: []string{"a"}},
		},
	}
	m.apply(building, now)

	evs := drain(sub)
	assert.Equal(t, []string{
		events.EventTypePhaseChanged,
		events.EventTypeTaskStarted,
		events.EventTypeProgress,
	}, eventTypes(evs))
	started := evs[1].(events.TaskStartedEvent)
	assert.Equal(t, "Design schema", started.Name)
	assert.Equal(t, 1, evs[2].(events.ProgressEvent).InProgress)

	// The same snapshot again publishes nothing
	m.apply(building, now)
	assert.Empty(t, drain(sub))

	waiting := &orchestrator.ProjectState{
		ProjectID:           "p1",
		Status:              orchestrator.StatusScaling,
		Phase:               orchestrator.PhaseScale,
		Gate:                orchestrator.GateProductionApproval,
		Paused:              true,
		TotalTasks:          2,
		CompletedTasksCount: 1,
		FailedTasks:         []string{"b"},
		Tasks: []*scheduler.Task{
			{ID: "a", Name: "Design schema", AgentRole: scheduler.RoleArchitect, Status: scheduler.TaskCompleted},
			{ID: "b", Name: "Build API", AgentRole: scheduler.RoleBackend, Status: scheduler.TaskFailed, Error: "boom"},
		},
		BuildResults: []orchestrator.BuildResult{
			{TaskID: "a", Attempts: 1, Output: &activity.TaskOutput{Summary: "schema ready"}},
			{TaskID: "b", Attempts: 3},
		},
	}
	m.apply(waiting, now)

	evs = drain(sub)
	assert.Equal(t, []string{
		events.EventTypePhaseChanged,
		events.EventTypeControl,
		events.EventTypeGateWaiting,
		events.EventTypeTaskCompleted,
		events.EventTypeTaskStarted,
		events.EventTypeTaskFailed,
		events.EventTypeProgress,
	}, eventTypes(evs))
	assert.Equal(t, orchestrator.SignalPause, evs[1].(events.ControlEvent).Signal)
	assert.Equal(t, string(orchestrator.GateProductionApproval), evs[2].(events.GateWaitingEvent).Gate)
	assert.Equal(t, "schema ready", evs[3].(events.TaskCompletedEvent).Summary)
	failed := evs[5].(events.TaskFailedEvent)
	assert.Equal(t, "boom", failed.Reason)
	assert.Equal(t, 3, failed.Attempts)

	released := *waiting
	released.Gate = orchestrator.GateNone
	released.Paused = false
	m.apply(&released, now)

	evs = drain(sub)
	require.Len(t, evs, 2)
	assert.Equal(t, orchestrator.SignalResume, evs[0].(events.ControlEvent).Signal)
	assert.Equal(t, string(orchestrator.GateProductionApproval), evs[1].(events.GateReleasedEvent).Gate)
}
