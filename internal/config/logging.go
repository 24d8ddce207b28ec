package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a text logger writing to w at the named level. Unknown
// levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LogLevel(level)}))
}

func LogLevel(level string) slog.Leveler {
	var lvl slog.Level

	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	lv := new(slog.LevelVar)
	lv.Set(lvl)
	return lv
}
