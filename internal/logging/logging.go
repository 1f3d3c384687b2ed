// Package logging configures the single process-wide slog handler used
// across chathistmgr: text output for an interactive terminal, JSON
// otherwise, matching the reference codebase's own choice of the standard
// library's structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Setup builds and installs the default slog.Logger, writing to w (typically
// os.Stderr) at level, and returns it for callers that want to pass it
// explicitly instead of relying on slog's package-level default.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
