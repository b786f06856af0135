// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// LogFormat selects the handler of a command logger.
type LogFormat string

const (
	// LogAuto writes text to a terminal and JSON otherwise.
	LogAuto LogFormat = "auto"
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// NewCommandLogger returns a logger on stderr at level. With LogAuto,
// a terminal gets slog's text handler; pipes, files and CI get JSON
// lines.
func NewCommandLogger(level slog.Level, format LogFormat) *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level, format)
}

func newLogger(w io.Writer, terminal bool, level slog.Level, format LogFormat) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	useText := format == LogText || (format != LogJSON && terminal)
	if useText {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
