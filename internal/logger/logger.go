package logger

import (
	"io"
	"log/slog"
	"os"
)

func New(env, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, env, service)
}

// NewWithWriter is New with an explicit sink; JSON in prod, text elsewhere.
func NewWithWriter(w io.Writer, env, service string) *slog.Logger {
	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(h).With("service", service, "env", env)
}
