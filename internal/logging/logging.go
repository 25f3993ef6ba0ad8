// Package logging builds the process logger: slog output on stderr,
// optionally mirrored to a size-rotated log file.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// File is the log file path; empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Verbose lowers the level to Debug.
	Verbose bool

	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// New returns a logger and a close function for the file sink.
//
// The stderr sink writes JSON when stderr is not a terminal. The file sink
// is always text.
func New(opts Options) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var stderrHandler slog.Handler
	if f, ok := stderr.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		stderrHandler = slog.NewJSONHandler(stderr, handlerOpts)
	} else {
		stderrHandler = slog.NewTextHandler(stderr, handlerOpts)
	}

	if opts.File == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	fileHandler := slog.NewTextHandler(rotator, handlerOpts)

	return slog.New(fanout{stderrHandler, fileHandler}), rotator.Close
}

// Component returns logger scoped to a component, falling back to the
// default logger.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
