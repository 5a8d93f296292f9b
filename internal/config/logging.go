package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
