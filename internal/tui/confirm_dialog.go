package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ConfirmDialogModel asks before a signal that cannot be taken back
// (approving a gate, cancelling the workflow) is sent.
type ConfirmDialogModel struct {
	form      *huh.Form
	signal    string
	payload   string
	title     string
	confirmed *bool
	visible   bool
	width     int
	height    int
}

// NewConfirmDialogModel creates a hidden dialog.
func NewConfirmDialogModel() ConfirmDialogModel {
	return ConfirmDialogModel{}
}

// Open shows the dialog for one signal and returns the form's init command.
func (m *ConfirmDialogModel) Open(title, signal, payload string) tea.Cmd {
	m.title = title
	m.signal = signal
	m.payload = payload
	m.confirmed = new(bool)
	m.visible = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("confirm").
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(m.confirmed),
		),
	)
	if m.width > 0 {
		m.form.WithWidth(max(20, m.width-8))
	}
	return m.form.Init()
}

// Update forwards messages to the form. done is true once the user answered
// or dismissed the dialog, with confirmed carrying the answer.
func (m ConfirmDialogModel) Update(msg tea.Msg) (ConfirmDialogModel, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.confirmed = nil
		return m, nil, true
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.visible = false
		return m, cmd, true
	case huh.StateAborted:
		m.visible = false
		m.confirmed = nil
		return m, cmd, true
	}
	return m, cmd, false
}

// Signal returns the signal name and payload the dialog is about.
func (m ConfirmDialogModel) Signal() (string, string) { return m.signal, m.payload }

// Confirmed reports the user's answer.
func (m ConfirmDialogModel) Confirmed() bool { return m.confirmed != nil && *m.confirmed }

// IsVisible returns whether the dialog is currently shown.
func (m ConfirmDialogModel) IsVisible() bool { return m.visible }

// View renders the dialog.
func (m ConfirmDialogModel) View() string {
	if !m.visible || m.form == nil {
		return ""
	}
	title := StyleGate.Render("Confirm")
	body := StyleDialogBorder.
		Width(max(20, m.width-4)).
		Render(m.form.View())
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dialog dimensions.
func (m *ConfirmDialogModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(max(20, w-8))
	}
}
