package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/convault/convault/internal/vault"
)

// metaSource adapts a meta slice to fuzzy.Source, matching on titles.
type metaSource []vault.Meta

func (s metaSource) String(i int) string { return s[i].Title }
func (s metaSource) Len() int            { return len(s) }

// filterMetas returns the metas whose titles fuzzy-match query, best match
// first. An empty query returns everything in the original order.
func filterMetas(metas []vault.Meta, query string) []vault.Meta {
	if query == "" {
		out := make([]vault.Meta, len(metas))
		copy(out, metas)
		return out
	}
	matches := fuzzy.FindFrom(query, metaSource(metas))
	out := make([]vault.Meta, 0, len(matches))
	for _, m := range matches {
		out = append(out, metas[m.Index])
	}
	return out
}

// Filter is the inline filter bar: while active it narrows the list as the
// user types; enter keeps the filter applied, esc clears it.
type Filter struct {
	input  textinput.Model
	active bool
}

// NewFilter creates the filter bar component
func NewFilter() *Filter {
	ti := textinput.New()
	ti.Placeholder = "Filter conversations..."
	ti.CharLimit = 100
	ti.Width = 40
	return &Filter{input: ti}
}

// Activate focuses the filter input
func (f *Filter) Activate() {
	f.active = true
	f.input.Focus()
}

// Deactivate blurs the input, keeping the current query applied
func (f *Filter) Deactivate() {
	f.active = false
	f.input.Blur()
}

// Clear blurs the input and resets the query
func (f *Filter) Clear() {
	f.active = false
	f.input.Blur()
	f.input.SetValue("")
}

// Active returns whether the filter input has focus
func (f *Filter) Active() bool {
	return f.active
}

// Query returns the current filter text
func (f *Filter) Query() string {
	return f.input.Value()
}

// Update forwards key events to the text input while active
func (f *Filter) Update(msg tea.Msg) tea.Cmd {
	if !f.active {
		return nil
	}
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return cmd
}

// View renders the filter bar
func (f *Filter) View() string {
	if !f.active && f.Query() == "" {
		return ""
	}
	prompt := FilterPromptStyle.Render("/")
	if !f.active {
		return prompt + " " + DimStyle.Render(f.Query()) + " " +
			MenuSeparatorStyle.Render("(esc clears)")
	}
	return FilterBoxStyle.Render(prompt + " " + f.input.View())
}
