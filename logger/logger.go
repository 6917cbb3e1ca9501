package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

type Config struct {
	DevMode bool
	// Level is one of debug, info, warn, error. Empty means info, or debug
	// in dev mode.
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

// Init installs the default slog logger: text in dev mode, JSON otherwise.
func Init(cfg Config) {
	slog.SetDefault(New(cfg))
}

func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level, cfg.DevMode)}

	var handler slog.Handler
	if cfg.DevMode {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// ParseLevel falls back to info (debug in dev mode) for unknown values.
func ParseLevel(s string, devMode bool) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		if devMode {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
	return level
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// LogPanic logs a recovered panic value with its stack.
func LogPanic(r any, msg string, args ...any) {
	args = append(args, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	slog.Error(msg, args...)
}
