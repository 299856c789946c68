package cmd

import (
	"os"

	"github.com/go-chi/httplog"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// newLogger logs to stdout: readable on a terminal, JSON otherwise.
func newLogger(dev bool) zerolog.Logger {
	level := "info"
	if dev {
		level = "debug"
	}

	return httplog.NewLogger("miditip", httplog.Options{
		LogLevel: level,
		JSON:     !term.IsTerminal(int(os.Stdout.Fd())),
		Concise:  true,
	})
}

// fileLogger logs JSON to path, or nowhere when path is empty.
func fileLogger(path string, dev bool) (zerolog.Logger, func() error, error) {
	if path == "" {
		return zerolog.Nop(), func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrap(err, "open log file")
	}

	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	return zerolog.New(f).Level(level).With().Timestamp().Str("service", "miditip").Logger(), f.Close, nil
}
