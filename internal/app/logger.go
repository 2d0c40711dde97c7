package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. LOG_FORMAT selects "json" for
// machine-readable output; anything else falls back to the "pretty" text
// default from Config.
func NewLogger(cfg *Config) *slog.Logger {
	format := "pretty"
	if cfg != nil {
		format = cfg.LogFormat
	}
	return slog.New(logHandler(os.Stdout, format)).With(slog.String("service", "sacom"))
}

func logHandler(w io.Writer, format string) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true})
	}
	return slog.NewTextHandler(w, nil)
}
