package ui

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Headless is the Host for non-interactive runs. Prompts resolve to their
// defaults unless an answer was preset with Answer.
type Headless struct {
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	answers map[string]string
}

// NewHeadless returns a Host that writes notices to out.
func NewHeadless(out io.Writer, logger *slog.Logger) *Headless {
	if logger == nil {
		logger = slog.Default()
	}
	return &Headless{out: out, logger: logger.With("component", "ui"), answers: make(map[string]string)}
}

// Answer presets the choice for prompts titled title.
func (h *Headless) Answer(title, choice string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answers[title] = choice
}

// Notify implements Host.
func (h *Headless) Notify(kind Kind, message string) {
	fmt.Fprintf(h.out, "[%s] %s\n", kind, message)
}

// Confirm implements Host.
func (h *Headless) Confirm(p Prompt) string {
	h.mu.Lock()
	choice, ok := h.answers[p.Title]
	h.mu.Unlock()
	if !ok {
		choice = p.Default
	}
	h.logger.Info("prompt answered without input", "prompt", p.Title, "choice", choice)
	return choice
}

// PromptOpenFile implements Host.
func (h *Headless) PromptOpenFile(string, []string) (string, error) {
	return "", ErrNoInput
}

// OpenDocument implements Host by printing the path.
func (h *Headless) OpenDocument(path string) error {
	_, err := fmt.Fprintln(h.out, path)
	return err
}
