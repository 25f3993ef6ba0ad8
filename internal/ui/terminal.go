package ui

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Terminal is the interactive Host. Prompts from concurrent syncs are
// shown one at a time.
type Terminal struct {
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex // held while a form owns the terminal
	runForm func(*huh.Form) error

	info    lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
}

// NewTerminal returns a Host that writes notices to out and prompts on the
// controlling terminal. Colour follows the terminal's profile; NO_COLOR
// disables it.
func NewTerminal(out io.Writer, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	r := lipgloss.NewRenderer(out)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Terminal{
		out:     out,
		logger:  logger.With("component", "ui"),
		runForm: (*huh.Form).Run,
		info:    r.NewStyle().Foreground(lipgloss.Color("10")),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Notify implements Host.
func (t *Terminal) Notify(kind Kind, message string) {
	var label string
	switch kind {
	case Warning:
		label = t.warning.Render("warning")
	case Error:
		label = t.err.Render("error")
	default:
		label = t.info.Render("pqsync")
	}
	fmt.Fprintf(t.out, "%s %s\n", label, message)
}

// Confirm implements Host.
func (t *Terminal) Confirm(p Prompt) string {
	choice := p.Default
	options := make([]huh.Option[string], 0, len(p.Options))
	for _, o := range p.Options {
		options = append(options, huh.NewOption(o, o))
	}

	sel := huh.NewSelect[string]().
		Title(p.Title).
		Description(p.Message).
		Options(options...).
		Value(&choice)
	if err := t.run(huh.NewForm(huh.NewGroup(sel))); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			t.logger.Warn("prompt failed, using default", "prompt", p.Title, "default", p.Default, "error", err)
		}
		return p.Default
	}
	return choice
}

func (t *Terminal) run(form *huh.Form) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runForm == nil {
		return form.Run()
	}
	return t.runForm(form)
}

// PromptOpenFile implements Host.
func (t *Terminal) PromptOpenFile(title string, extensions []string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	var path string
	picker := huh.NewFilePicker().
		Title(title).
		CurrentDirectory(cwd).
		AllowedTypes(extensions).
		Value(&path)
	if err := t.run(huh.NewForm(huh.NewGroup(picker))); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrNoInput
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	if path == "" {
		return "", ErrNoInput
	}
	return filepath.Abs(path)
}

// OpenDocument implements Host using the platform's default opener.
func (t *Terminal) OpenDocument(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
