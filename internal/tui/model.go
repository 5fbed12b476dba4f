package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
)

// Signaler delivers a named signal to the workflow being watched. Both the
// in-process orchestrator and the remote control client satisfy it.
type Signaler interface {
	Signal(name, payload string) error
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// signalResultMsg reports the outcome of a signal sent from the dashboard.
type signalResultMsg struct {
	name string
	err  error
}

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	dialog       ConfirmDialogModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	signaler     Signaler
	statusLine   string
	width        int
	height       int
	quitting     bool
}

// New creates a dashboard for one project. It subscribes to every topic of
// the bus.
func New(eventBus *events.EventBus, signaler Signaler, projectID string) Model {
	m := Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(projectID),
		dialog:       NewConfirmDialogModel(),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(256),
		signaler:     signaler,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// sendSignal returns a command delivering one signal off the update loop.
func (m Model) sendSignal(name, payload string) tea.Cmd {
	sig := m.signaler
	return func() tea.Msg {
		if sig == nil {
			return signalResultMsg{name: name, err: fmt.Errorf("no workflow to signal")}
		}
		return signalResultMsg{name: name, err: sig.Signal(name, payload)}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The confirm dialog is modal
	if m.dialog.IsVisible() {
		if _, isKey := msg.(tea.KeyMsg); isKey {
			var cmd tea.Cmd
			var done bool
			m.dialog, cmd, done = m.dialog.Update(msg)
			cmds = append(cmds, cmd)
			if done {
				cmds = append(cmds, m.finishDialog())
			}
			return m, tea.Batch(cmds...)
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPause:
			cmds = append(cmds, m.sendSignal(orchestrator.SignalPause, ""))

		case KeyResume:
			cmds = append(cmds, m.sendSignal(orchestrator.SignalResume, ""))

		case KeyApprove:
			gate := m.progressPane.Gate()
			if gate == "" {
				m.statusLine = "No gate is waiting for approval"
				break
			}
			cmds = append(cmds, m.dialog.Open(fmt.Sprintf("Approve %s?", gate), orchestrator.SignalApprove, ""))

		case KeyCancel:
			cmds = append(cmds, m.dialog.Open("Cancel the workflow?", orchestrator.SignalCancel, ""))

		default:
			switch m.focusedPane {
			case PaneTasks:
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneProgress:
				var cmd tea.Cmd
				m.progressPane, cmd = m.progressPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case signalResultMsg:
		if msg.err != nil {
			m.statusLine = fmt.Sprintf("%s failed: %v", msg.name, msg.err)
		} else {
			m.statusLine = fmt.Sprintf("%s sent", msg.name)
		}

	case events.TaskStartedEvent, events.TaskRetryingEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.TaskBlockedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.PhaseChangedEvent, events.ProgressEvent, events.GateWaitingEvent,
		events.GateReleasedEvent, events.ControlEvent, events.NotificationEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		if m.dialog.IsVisible() {
			var cmd tea.Cmd
			var done bool
			m.dialog, cmd, done = m.dialog.Update(msg)
			cmds = append(cmds, cmd)
			if done {
				cmds = append(cmds, m.finishDialog())
			}
		}
	}

	return m, tea.Batch(cmds...)
}

// finishDialog sends the dialog's signal if the user confirmed it.
func (m *Model) finishDialog() tea.Cmd {
	name, payload := m.dialog.Signal()
	if !m.dialog.Confirmed() {
		m.statusLine = name + " dismissed"
		return nil
	}
	return m.sendSignal(name, payload)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.dialog.IsVisible() {
		return m.dialog.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())

	footer := HelpView()
	if m.statusLine != "" {
		footer = StyleGate.Render(m.statusLine) + "  " + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)
	m.dialog.SetSize(m.width, m.height)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
