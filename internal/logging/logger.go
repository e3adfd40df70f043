// Package logging builds the zerolog logger for the CLI and the TUI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Options selects where and how much to log.
type Options struct {
	Level string // zerolog level name; empty means info
	// File receives JSON log lines. When empty, logs go to Console if set,
	// and are discarded otherwise.
	File string
	// Console receives human-readable log lines when File is empty.
	Console io.Writer
}

// New returns a logger and a close function for the log file. The TUI never
// passes a Console writer: the alternate screen owns the terminal.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var output io.Writer = io.Discard
	closeFn := func() error { return nil }
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
		closeFn = f.Close
	case opts.Console != nil:
		output = zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: "15:04:05",
		}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closeFn, nil
}
