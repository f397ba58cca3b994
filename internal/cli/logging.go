package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/lamassu-labs/sentinel/internal/core/config"
)

// initLogging installs the process-wide slog handler: tint for console
// output, plain JSON when the config asks for machine-readable logs.
func initLogging(cfg config.LoggingConfig, debug bool) {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
