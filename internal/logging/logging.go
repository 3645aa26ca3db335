// Package logging installs the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/talgya/system-tactics/internal/config"
)

// Init sets the default slog logger from config, writing to stdout.
func Init(cfg config.LoggingConfig) {
	slog.SetDefault(New(os.Stdout, cfg, isatty.IsTerminal(os.Stdout.Fd())))
}

// New builds a logger. In "auto" format the handler is text when tty is
// true and JSON otherwise.
func New(w io.Writer, cfg config.LoggingConfig, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	useText := cfg.Format == "text" || (cfg.Format != "json" && tty)
	if useText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
