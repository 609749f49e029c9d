// Package ui provides terminal output helpers for padsync: colors, status
// symbols and value formatting shared by the CLI and the TUI.
package ui

import (
	"github.com/fatih/color"
)

// Painters for styled output. They return plain text when colors are off.
var (
	Success = color.New(color.FgGreen).SprintFunc()
	Error   = color.New(color.FgRed).SprintFunc()
	Warning = color.New(color.FgYellow).SprintFunc()
	Info    = color.New(color.FgCyan).SprintFunc()
	Bold    = color.New(color.Bold).SprintFunc()
	Dim     = color.New(color.Faint).SprintFunc()
	// Header styles table column titles.
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolPending = "○"
)

// StatusSuccess prefixes msg with a green check mark.
func StatusSuccess(msg string) string { return status(Success, SymbolSuccess, msg) }

// StatusError prefixes msg with a red cross.
func StatusError(msg string) string { return status(Error, SymbolError, msg) }

// StatusWarning prefixes msg with a yellow warning sign.
func StatusWarning(msg string) string { return status(Warning, SymbolWarning, msg) }

// StatusSkipped prefixes msg with a dim dash.
func StatusSkipped(msg string) string { return status(Dim, SymbolSkipped, msg) }

// StatusPending prefixes msg with a dim circle.
func StatusPending(msg string) string { return status(Dim, SymbolPending, msg) }

func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// StateLabel colors a sync state name by outcome.
func StateLabel(state string) string {
	switch state {
	case "success":
		return Success(state)
	case "conflict", "paused":
		return Warning(state)
	case "error":
		return Error(state)
	case "syncing":
		return Info(state)
	default:
		return Dim(state)
	}
}

// SetMode applies a color setting: "always", "never" or "auto". Auto keeps
// the terminal detection done at startup.
func SetMode(mode string) {
	switch mode {
	case "always":
		EnableColors()
	case "never":
		DisableColors()
	}
}

// DisableColors turns off color output process-wide.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled reports whether painters emit color codes.
func IsColorEnabled() bool {
	return !color.NoColor
}
