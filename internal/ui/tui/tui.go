// Package tui provides the interactive conflict resolver built on BubbleTea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts a BubbleTea program with the given model.
func Run(model tea.Model, opts ...tea.ProgramOption) (tea.Model, error) {
	p := tea.NewProgram(model, opts...)
	return p.Run()
}
