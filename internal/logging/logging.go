// Package logging sets up the process logger from the CLI configuration,
// carries it through contexts and names the attributes build and bundle
// records share.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/promstack/internal/config"
)

type ctxKey struct{}

// Setup creates the logger described by cfg, writing to w (stderr when nil),
// and installs it as the process-wide default. Output of the standard log
// package, which some libraries still use for warnings, is routed through
// the same handler at warn level so it honours the level and format too.
func Setup(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.EffectiveLogLevel())}

	var handler slog.Handler
	if cfg.LogFormat == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(slog.LevelWarn)

	return logger
}

// ParseLevel converts a configured level name to a slog.Level. Unknown
// names yield info.
func ParseLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
