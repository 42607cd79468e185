package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TitleDialog edits a conversation title
type TitleDialog struct {
	input    textinput.Model
	visible  bool
	targetID string
	width    int
	height   int
}

// NewTitleDialog creates a new retitle dialog
func NewTitleDialog() *TitleDialog {
	ti := textinput.New()
	ti.Placeholder = "Conversation title"
	ti.CharLimit = MaxTitleLength
	ti.Width = 40
	return &TitleDialog{input: ti}
}

// Show opens the dialog pre-filled with the current title
func (d *TitleDialog) Show(id, current string) {
	d.visible = true
	d.targetID = id
	d.input.SetValue(current)
	d.input.CursorEnd()
	d.input.Focus()
}

// Hide hides the dialog
func (d *TitleDialog) Hide() {
	d.visible = false
	d.targetID = ""
	d.input.Blur()
	d.input.SetValue("")
}

// IsVisible returns whether the dialog is visible
func (d *TitleDialog) IsVisible() bool {
	return d.visible
}

// TargetID returns the conversation id being retitled
func (d *TitleDialog) TargetID() string {
	return d.targetID
}

// Value returns the edited title
func (d *TitleDialog) Value() string {
	return strings.TrimSpace(d.input.Value())
}

// Validate reports whether the edited title can be submitted
func (d *TitleDialog) Validate() error {
	if d.Value() == "" {
		return fmt.Errorf("title cannot be empty")
	}
	return nil
}

// SetSize updates dialog dimensions
func (d *TitleDialog) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// Update forwards key events to the text input
func (d *TitleDialog) Update(msg tea.Msg) tea.Cmd {
	if !d.visible {
		return nil
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return cmd
}

// View renders the retitle dialog
func (d *TitleDialog) View() string {
	if !d.visible {
		return ""
	}

	hint := lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Render("[Enter] Save  [Esc] Cancel")

	content := lipgloss.JoinVertical(lipgloss.Left,
		DialogTitleStyle.Render("Rename Conversation"),
		"",
		FilterBoxStyle.Render(d.input.View()),
		"",
		hint,
	)

	dialogWidth := 52
	if d.width > 0 && d.width < dialogWidth+10 {
		dialogWidth = d.width - 10
	}

	box := DialogBoxStyle.Width(dialogWidth).Render(content)
	return centerInScreen(box, d.width, d.height)
}
