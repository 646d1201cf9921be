package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the process logger. Dev environments get colorized tint output;
// everything else gets JSON lines for log collectors.
func New(level slog.Level, env string, appName string) *slog.Logger {
	if env == "dev" {
		h := tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With("app", appName, "env", env)
}
