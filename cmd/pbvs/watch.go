package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/pbvs/internal/control"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/scheduler"
	"github.com/aristath/pbvs/internal/tui"
)

func watchCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Attach the dashboard to a workflow running in another process",
		Long: `Attach the live dashboard to a workflow through its control server.
The workflow state is polled and the dashboard keys send signals back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client := control.NewClient(addr)
			state, err := client.State(ctx)
			if err != nil {
				return fmt.Errorf("reach control server at %s: %w", addr, err)
			}

			bus := events.NewEventBus()
			defer bus.Close()

			program := tea.NewProgram(
				tui.New(bus, remoteSignaler{ctx: ctx, client: client}, state.ProjectID),
				tea.WithAltScreen(), tea.WithContext(ctx))

			mirror := &stateMirror{bus: bus}
			go func() {
				mirror.apply(state, time.Now())
				pollState(ctx, client, mirror, interval)
			}()

			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "Control server address")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "How often to poll the workflow")

	return cmd
}

// remoteSignaler sends dashboard signals through the control client.
type remoteSignaler struct {
	ctx    context.Context
	client *control.Client
}

func (r remoteSignaler) Signal(name, payload string) error {
	return r.client.Signal(r.ctx, name, payload)
}

// pollState feeds snapshots into mirror until ctx ends or the workflow
// reaches a terminal status.
func pollState(ctx context.Context, client *control.Client, mirror *stateMirror, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		state, err := client.State(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Report each distinct failure once
			if msg := err.Error(); msg != lastErr {
				lastErr = msg
				mirror.bus.Publish(events.NotificationEvent{
					Project:   mirror.projectID(),
					Message:   "control server unreachable: " + msg,
					Timestamp: time.Now(),
				})
			}
			continue
		}
		lastErr = ""
		mirror.apply(state, time.Now())
		if state.Status.Terminal() {
			return
		}
	}
}

// stateMirror turns successive getState snapshots into the events an
// in-process workflow would have published.
type stateMirror struct {
	bus      *events.EventBus
	prev     *orchestrator.ProjectState
	progress events.ProgressEvent
}

func (m *stateMirror) projectID() string {
	if m.prev == nil {
		return ""
	}
	return m.prev.ProjectID
}

func (m *stateMirror) apply(s *orchestrator.ProjectState, now time.Time) {
	prev := m.prev
	if prev == nil {
		prev = &orchestrator.ProjectState{}
	}
	m.prev = s
	id := s.ProjectID

	if s.Status != prev.Status || s.Phase != prev.Phase {
		m.bus.Publish(events.PhaseChangedEvent{Project: id, Phase: string(s.Phase), Status: string(s.Status), Timestamp: now})
	}
	if s.Paused != prev.Paused {
		sig := orchestrator.SignalResume
		if s.Paused {
			sig = orchestrator.SignalPause
		}
		m.bus.Publish(events.ControlEvent{Project: id, Signal: sig, Timestamp: now})
	}
	if s.Gate != prev.Gate {
		if prev.Gate != orchestrator.GateNone {
			m.bus.Publish(events.GateReleasedEvent{Project: id, Gate: string(prev.Gate), Timestamp: now})
		}
		if s.Gate != orchestrator.GateNone {
			m.bus.Publish(events.GateWaitingEvent{Project: id, Gate: string(s.Gate), Timestamp: now})
		}
	}

	m.publishTasks(prev, s, now)

	p := events.ProgressEvent{
		Project:   id,
		Total:     s.TotalTasks,
		Completed: s.CompletedTasksCount,
		Failed:    len(s.FailedTasks),
		Blocked:   len(s.BlockedTasks),
	}
	for _, t := range s.Tasks {
		if t.Status == scheduler.TaskInProgress {
			p.InProgress++
		}
	}
	if p != m.progress {
		m.progress = p
		p.Timestamp = now
		m.bus.Publish(p)
	}
}

func (m *stateMirror) publishTasks(prev, s *orchestrator.ProjectState, now time.Time) {
	before := make(map[string]scheduler.TaskStatus, len(prev.Tasks))
	for _, t := range prev.Tasks {
		before[t.ID] = t.Status
	}
	results := make(map[string]orchestrator.BuildResult, len(s.BuildResults))
	for _, br := range s.BuildResults {
		results[br.TaskID] = br
	}

	id := s.ProjectID
	for _, t := range s.Tasks {
		was := before[t.ID]
		if was == t.Status {
			continue
		}
		br := results[t.ID]

		// The dashboard learns a task's name and role from its start
		if t.Status == scheduler.TaskInProgress ||
			(was != scheduler.TaskInProgress && (t.Status == scheduler.TaskCompleted || t.Status == scheduler.TaskFailed)) {
			m.bus.Publish(events.TaskStartedEvent{
				Project:   id,
				ID:        t.ID,
				Name:      t.Name,
				AgentRole: string(t.AgentRole),
				Attempt:   max(br.Attempts, 1),
				Timestamp: now,
			})
		}

		switch t.Status {
		case scheduler.TaskCompleted:
			summary := ""
			if br.Output != nil {
				summary = br.Output.Summary
			}
			m.bus.Publish(events.TaskCompletedEvent{
				Project: id, ID: t.ID, Summary: summary,
				Attempts: br.Attempts, Duration: br.Duration, Timestamp: now,
			})
		case scheduler.TaskFailed:
			m.bus.Publish(events.TaskFailedEvent{
				Project: id, ID: t.ID, Reason: t.Error,
				Attempts: br.Attempts, Duration: br.Duration, Timestamp: now,
			})
		case scheduler.TaskBlocked:
			m.bus.Publish(events.TaskBlockedEvent{Project: id, ID: t.ID, Reason: t.Error, Timestamp: now})
		}
	}
}
