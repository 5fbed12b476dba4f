package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/orchestrator"
)

// ProgressPaneModel shows the workflow phase, task counts and the gate the
// workflow is holding at, if any.
type ProgressPaneModel struct {
	projectID  string
	phase      string
	status     string
	total      int
	completed  int
	failed     int
	blocked    int
	inProgress int
	gate       string
	gateReason string
	paused     bool
	lastNote   string
	width      int
	height     int
	focused    bool
}

// NewProgressPaneModel creates a progress pane for one project.
func NewProgressPaneModel(projectID string) ProgressPaneModel {
	return ProgressPaneModel{projectID: projectID, status: "starting"}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.PhaseChangedEvent:
		m.phase = msg.Phase
		m.status = msg.Status

	case events.ProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.failed = msg.Failed
		m.blocked = msg.Blocked
		m.inProgress = msg.InProgress

	case events.GateWaitingEvent:
		m.gate = msg.Gate
		m.gateReason = msg.Reason
		if msg.Gate == string(orchestrator.GateValidationReview) {
			m.paused = true
		}

	case events.GateReleasedEvent:
		m.gate = ""
		m.gateReason = ""
		m.paused = false

	case events.ControlEvent:
		switch msg.Signal {
		case orchestrator.SignalPause:
			m.paused = true
		case orchestrator.SignalResume:
			m.paused = false
		}

	case events.NotificationEvent:
		m.lastNote = firstLine(msg.Message)
	}

	return m, nil
}

// Gate returns the gate the workflow is waiting at, or "".
func (m ProgressPaneModel) Gate() string { return m.gate }

// Paused reports whether the last known control state is paused.
func (m ProgressPaneModel) Paused() bool { return m.paused }

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Project:   %s\n", m.projectID))
	b.WriteString(fmt.Sprintf("Phase:     %s (%s)\n", orDash(m.phase), m.status))
	if m.paused {
		b.WriteString(StyleGate.Render("PAUSED") + "\n")
	}
	if m.gate != "" {
		b.WriteString(StyleGate.Render("Waiting at "+m.gate) + "\n")
		if m.gateReason != "" {
			b.WriteString(m.gateReason + "\n")
		}
	}
	b.WriteString("\n")

	pending := max(0, m.total-m.completed-m.failed-m.blocked-m.inProgress)
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", pending))))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := max(1, min(m.width-14, 40))
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		blockedWidth := (m.blocked * barWidth) / m.total
		runningWidth := (m.inProgress * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - blockedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusBlocked.Render(strings.Repeat("x", max(0, blockedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	if m.lastNote != "" {
		b.WriteString("\n" + StyleHelp.Render(m.lastNote) + "\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
