package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// level backs every logger built here so SetLevel applies without a restart.
var level = new(slog.LevelVar)

// secretKeys are attribute keys whose values never reach the log output.
var secretKeys = map[string]bool{
	"api_key":  true,
	"password": true,
	"dsn":      true,
}

// Setup installs the default slog logger for service on stdout.
// level may be "debug", "info", "warn", or "error" (default "info").
// format may be "json" or "text" (default "json").
func Setup(service, lvl, format string) {
	slog.SetDefault(New(os.Stdout, service, lvl, format))
}

// New builds a logger tagged with the service name. Every logger shares the
// package level.
func New(w io.Writer, service, lvl, format string) *slog.Logger {
	if err := SetLevel(lvl); err != nil {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

// SetLevel changes the level of all loggers built by this package.
func SetLevel(lvl string) error {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info", "":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", lvl)
	}
	return nil
}

// Level reports the current level.
func Level() slog.Level {
	return level.Level()
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}
