package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/convault/convault/internal/vault"
)

// Run starts the full-screen conversation browser and blocks until quit
func Run(store *vault.Store, opts Options) error {
	InitTheme(vault.ResolveTheme())

	model := NewBrowser(store, opts)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
