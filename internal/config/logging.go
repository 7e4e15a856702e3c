package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string
	Format string
}

func (c LogConfig) validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("config error: unknown log format %q (want text or json)", c.Format)
	}
}

func (c LogConfig) level() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config error: unknown log level %q", c.Level)
	}
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
