package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/convault/convault/internal/vault"
)

// Preview renders a conversation transcript in the right-hand pane
type Preview struct {
	meta       vault.Meta
	entries    []vault.TranscriptEntry
	rawBody    bool
	loaded     bool
	loadErr    error
	maxEntries int
	width      int
	height     int
}

// NewPreview creates the preview pane
func NewPreview(maxEntries int) *Preview {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &Preview{maxEntries: maxEntries}
}

// SetSize updates pane dimensions
func (p *Preview) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetContent replaces the pane with meta plus a loaded body. A body that
// does not parse as a conversation tree is shown as opaque JSON.
func (p *Preview) SetContent(meta vault.Meta, body json.RawMessage) {
	p.meta = meta
	p.loaded = true
	p.loadErr = nil
	p.rawBody = false
	p.entries = nil

	conv, err := vault.ParseConversation(body)
	if err != nil || conv == nil {
		p.rawBody = true
		return
	}
	p.entries = conv.Transcript()
}

// SetError shows a load failure in the pane
func (p *Preview) SetError(meta vault.Meta, err error) {
	p.meta = meta
	p.loaded = true
	p.loadErr = err
	p.entries = nil
}

// Clear empties the pane
func (p *Preview) Clear() {
	p.meta = vault.Meta{}
	p.entries = nil
	p.loaded = false
	p.loadErr = nil
	p.rawBody = false
}

// View renders the preview pane
func (p *Preview) View() string {
	innerWidth := p.width - 4
	if innerWidth < 10 {
		innerWidth = 10
	}
	innerHeight := p.height - 2
	if innerHeight < 3 {
		innerHeight = 3
	}

	var b strings.Builder
	switch {
	case !p.loaded:
		b.WriteString(DimStyle.Render("enter to preview a conversation"))
	case p.loadErr != nil:
		b.WriteString(PreviewTitleStyle.Render(truncateLine(p.meta.Title, innerWidth)))
		b.WriteString("\n\n")
		b.WriteString(ErrorStyle.Render("load failed: " + p.loadErr.Error()))
	case p.rawBody:
		b.WriteString(PreviewTitleStyle.Render(truncateLine(p.meta.Title, innerWidth)))
		b.WriteString("\n")
		b.WriteString(p.metaLine())
		b.WriteString("\n\n")
		b.WriteString(DimStyle.Render("(no message tree; stored verbatim)"))
	default:
		b.WriteString(PreviewTitleStyle.Render(truncateLine(p.meta.Title, innerWidth)))
		b.WriteString("\n")
		b.WriteString(p.metaLine())
		b.WriteString("\n")

		entries := p.entries
		if len(entries) > p.maxEntries {
			entries = entries[len(entries)-p.maxEntries:]
		}
		lines := innerHeight - 3
		for _, entry := range entries {
			if lines <= 0 {
				break
			}
			b.WriteString("\n")
			b.WriteString(PreviewRoleStyle.Render(entry.Role + ":"))
			lines--
			for _, line := range wrapText(entry.Text, innerWidth) {
				if lines <= 0 {
					break
				}
				b.WriteString("\n")
				b.WriteString(PreviewContentStyle.Render(line))
				lines--
			}
		}
	}

	return PreviewPanelStyle.
		Width(p.width - 2).
		Height(innerHeight).
		Render(b.String())
}

func (p *Preview) metaLine() string {
	parts := []string{fmt.Sprintf("%d messages", p.meta.MessageCount)}
	if p.meta.UpdateTime != nil {
		ts := time.Unix(int64(*p.meta.UpdateTime), 0)
		parts = append(parts, "updated "+ts.Format("2006-01-02 15:04"))
	}
	if p.meta.Dirty {
		parts = append(parts, "unsynced")
	}
	return PreviewMetaStyle.Render(strings.Join(parts, " · "))
}

// truncateLine shortens s to fit width terminal cells
func truncateLine(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// wrapText breaks text into display lines no wider than width cells.
// Existing newlines are respected; long words are hard-split.
func wrapText(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	var out []string
	for _, source := range strings.Split(text, "\n") {
		if source == "" {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range strings.Fields(source) {
			for runewidth.StringWidth(word) > width {
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, runewidth.Truncate(word, width, ""))
				word = word[len(runewidth.Truncate(word, width, "")):]
			}
			switch {
			case line == "":
				line = word
			case runewidth.StringWidth(line)+1+runewidth.StringWidth(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// joinPanes lays the list and preview side by side
func joinPanes(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}
