// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Formats accepted by Init.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Init sets the default logger. Verbose enables debug output; format is
// "text" or "json" and falls back to text when unknown.
func Init(verbose bool, format string) {
	slog.SetDefault(New(os.Stderr, verbose, format))
}

// New builds a logger writing to w.
func New(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, FormatJSON) {
		// JSON output runs under Lambda, where Info records are kept.
		if !verbose {
			opts.Level = slog.LevelInfo
		}
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
