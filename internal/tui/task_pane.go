package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pbvs/internal/events"
)

// Task display statuses.
const (
	statusRunning   = "running"
	statusRetrying  = "retrying"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusBlocked   = "blocked"
)

// TaskState is what the dashboard knows about one task.
type TaskState struct {
	TaskID    string
	Name      string
	AgentRole string
	Status    string
	Attempts  int
	Log       []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel is the task list with a scrollable log of the selected task.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		t := m.task(msg.ID)
		if t.Name == "" {
			t.Name = msg.Name
		}
		t.AgentRole = msg.AgentRole
		t.Status = statusRunning
		t.Attempts = msg.Attempt
		if msg.Attempt <= 1 {
			t.StartTime = msg.Timestamp
		}
		t.Log = append(t.Log, fmt.Sprintf("attempt %d started (%s)", msg.Attempt, msg.AgentRole))
		m.touched(msg.ID)

	case events.TaskRetryingEvent:
		t := m.task(msg.ID)
		t.Status = statusRetrying
		t.Log = append(t.Log, fmt.Sprintf("attempt %d failed, retrying in %v: %s", msg.Attempt, msg.Delay, msg.Reason))
		m.touched(msg.ID)

	case events.TaskCompletedEvent:
		t := m.task(msg.ID)
		t.Status = statusCompleted
		t.Attempts = msg.Attempts
		t.Duration = msg.Duration
		t.Log = append(t.Log, fmt.Sprintf("[completed after %d attempt(s) in %v]", msg.Attempts, msg.Duration.Round(time.Millisecond)))
		if msg.Summary != "" {
			t.Log = append(t.Log, msg.Summary)
		}
		m.touched(msg.ID)

	case events.TaskFailedEvent:
		t := m.task(msg.ID)
		t.Status = statusFailed
		t.Attempts = msg.Attempts
		t.Duration = msg.Duration
		t.Log = append(t.Log, fmt.Sprintf("[failed after %d attempt(s): %s]", msg.Attempts, msg.Reason))
		m.touched(msg.ID)

	case events.TaskBlockedEvent:
		t := m.task(msg.ID)
		t.Status = statusBlocked
		t.Log = append(t.Log, fmt.Sprintf("[blocked: %s]", msg.Reason))
		m.touched(msg.ID)
	}

	return m, cmd
}

// task returns the entry for id, adding it to the list on first sight. A task
// blocked by a dependency is first seen without a name.
func (m *TaskPaneModel) task(id string) *TaskState {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskState{TaskID: id}
	m.tasks[id] = t
	m.order = append(m.order, id)
	if len(m.order) == 1 {
		m.selectedIdx = 0
	}
	return t
}

func (m *TaskPaneModel) touched(id string) {
	if m.SelectedTaskID() == id {
		m.updateViewportContent()
	}
}

// Task returns the state of one task, if the pane has seen it.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

// Len returns how many tasks the pane lists.
func (m TaskPaneModel) Len() int { return len(m.order) }

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := m.listWidth()
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(m.width-listWidth-4).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) listWidth() int {
	return min(32, max(12, m.width/3))
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		name := t.Name
		if name == "" {
			name = shortID(id)
		}
		if len(name) > width-4 && width > 7 {
			name = name[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case statusRunning, statusRetrying:
		return StyleStatusRunning.Render("●")
	case statusCompleted:
		return StyleStatusComplete.Render("✓")
	case statusFailed:
		return StyleStatusFailed.Render("✗")
	case statusBlocked:
		return StyleStatusBlocked.Render("⊘")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedTaskID returns the id of the highlighted task.
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s  [%s]  %s", t.Name, t.AgentRole, t.Status)
	m.viewport.SetContent(header + "\n\n" + strings.Join(t.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(10, m.width-m.listWidth()-4)
	m.viewport.Height = max(5, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
