package app

import (
	"io"
	"log/slog"
)

// newLogger builds the slog.Logger for one process, submitter or worker.
// Nothing global is touched: each process role configures its own instance,
// and workers keep logging to their per-task log file through outW. The
// verbose switch attaches source locations to every record, which is how
// the VERBOSE parameter surfaces in the output.
func newLogger(levelStr, formatStr string, verbose bool, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: verbose}

	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	} else {
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler)
}
