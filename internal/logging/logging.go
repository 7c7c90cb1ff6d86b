// Package logging builds the tool's two log streams: a leveled progress
// logger and a privileged command-transcript logger. The transcript stream
// carries raw configuration payloads and device responses, so it goes to
// its own file and is only mirrored to the console when explicitly enabled.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ryanmadzima/onboarder/internal/config"
)

// Loggers bundles the two streams plus the cleanup for their file handles.
type Loggers struct {
	Progress *slog.Logger
	Commands *slog.Logger

	files []*os.File
}

// New opens the configured log files and returns both loggers. Callers must
// Close the returned Loggers when done.
func New(cfg config.LoggingConfig) (*Loggers, error) {
	l := &Loggers{}

	progressOut := []io.Writer{os.Stdout}
	if cfg.FilePath != "" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		l.files = append(l.files, f)
		progressOut = append(progressOut, f)
	}
	l.Progress = slog.New(newHandler(cfg.Format, io.MultiWriter(progressOut...), parseLevel(cfg.Level)))

	var commandOut []io.Writer
	if cfg.CommandFile != "" {
		f, err := openLogFile(cfg.CommandFile)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.files = append(l.files, f)
		commandOut = append(commandOut, f)
	}
	if cfg.CommandConsole {
		commandOut = append(commandOut, os.Stdout)
	}
	if len(commandOut) == 0 {
		commandOut = append(commandOut, io.Discard)
	}
	// The transcript stream is always maximum verbosity.
	l.Commands = slog.New(newHandler(cfg.Format, io.MultiWriter(commandOut...), slog.LevelDebug))

	return l, nil
}

// Close releases the log file handles.
func (l *Loggers) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
