// Package ui is the host side of pqsync: notices, choices and the single
// workbook picker. The daemon and commands talk to a Host; the terminal
// implementation renders with lipgloss and prompts with huh, and the
// headless one answers every prompt with its default.
package ui

import (
	"errors"
	"fmt"
)

// Kind is the severity of a notice.
type Kind int

const (
	Info Kind = iota
	Warning
	Error
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Choices offered by pqsync prompts.
const (
	Retry       = "Retry"
	Cancel      = "Cancel"
	Restore     = "Restore"
	KeepCurrent = "Keep Current"
	WatchAnyway = "Watch anyway"
	SyncDelete  = "Sync & Delete"
)

// ErrNoInput is returned by PromptOpenFile when no user can answer.
var ErrNoInput = errors.New("no interactive input available")

// Prompt is a question with a fixed set of answers.
type Prompt struct {
	Title   string
	Message string
	Options []string
	// Default is returned when the prompt cannot be shown or is aborted.
	Default string
}

// Host is the user-facing collaborator.
type Host interface {
	// Notify shows a notice.
	Notify(kind Kind, message string)
	// Confirm asks the user to pick one of p.Options.
	Confirm(p Prompt) string
	// PromptOpenFile lets the user pick a file with one of extensions.
	PromptOpenFile(title string, extensions []string) (string, error)
	// OpenDocument opens path in the user's editor.
	OpenDocument(path string) error
}

// Notifyf formats and shows a notice.
func Notifyf(h Host, kind Kind, format string, args ...any) {
	h.Notify(kind, fmt.Sprintf(format, args...))
}
