package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmDialog asks before deleting a conversation
type ConfirmDialog struct {
	visible    bool
	targetID   string
	targetName string
	width      int
	height     int
}

// NewConfirmDialog creates a new confirmation dialog
func NewConfirmDialog() *ConfirmDialog {
	return &ConfirmDialog{}
}

// ShowDelete shows confirmation for conversation deletion
func (c *ConfirmDialog) ShowDelete(id, title string) {
	c.visible = true
	c.targetID = id
	c.targetName = title
}

// Hide hides the dialog
func (c *ConfirmDialog) Hide() {
	c.visible = false
	c.targetID = ""
	c.targetName = ""
}

// IsVisible returns whether the dialog is visible
func (c *ConfirmDialog) IsVisible() bool {
	return c.visible
}

// TargetID returns the conversation id being confirmed
func (c *ConfirmDialog) TargetID() string {
	return c.targetID
}

// SetSize updates dialog dimensions
func (c *ConfirmDialog) SetSize(width, height int) {
	c.width = width
	c.height = height
}

// View renders the confirmation dialog
func (c *ConfirmDialog) View() string {
	if !c.visible {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorRed).
		MarginBottom(1)
	warningStyle := lipgloss.NewStyle().
		Foreground(ColorYellow).
		MarginBottom(1)
	detailsStyle := lipgloss.NewStyle().
		Foreground(ColorTextDim).
		MarginBottom(1)

	buttonYes := lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorRed).
		Padding(0, 2).
		Bold(true).
		Render("y Delete")
	buttonNo := lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorAccent).
		Padding(0, 2).
		Bold(true).
		Render("n Cancel")
	escHint := lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Render("(Esc to cancel)")
	buttons := lipgloss.JoinHorizontal(lipgloss.Center, buttonYes, "  ", buttonNo, "  ", escHint)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("⚠️  Delete Conversation?"),
		warningStyle.Render(fmt.Sprintf("This will permanently delete:\n\n  %q", c.targetName)),
		detailsStyle.Render("• The record file is removed\n• The next consolidation drops it from the snapshot\n• This cannot be undone"),
		"",
		buttons,
	)

	dialogWidth := 54
	if c.width > 0 && c.width < dialogWidth+10 {
		dialogWidth = c.width - 10
	}

	dialogBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorRed).
		Padding(1, 2).
		Width(dialogWidth).
		Render(content)

	return centerInScreen(dialogBox, c.width, c.height)
}

// centerInScreen centers content in the terminal
func centerInScreen(content string, screenWidth, screenHeight int) string {
	if screenWidth <= 0 || screenHeight <= 0 {
		return content
	}

	contentHeight := lipgloss.Height(content)
	contentWidth := lipgloss.Width(content)

	padTop := (screenHeight - contentHeight) / 2
	if padTop < 0 {
		padTop = 0
	}
	padLeft := (screenWidth - contentWidth) / 2
	if padLeft < 0 {
		padLeft = 0
	}

	var b strings.Builder
	for i := 0; i < padTop; i++ {
		b.WriteString("\n")
	}
	padding := strings.Repeat(" ", padLeft)
	for _, line := range strings.Split(content, "\n") {
		b.WriteString(padding)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
