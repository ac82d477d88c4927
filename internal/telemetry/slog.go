package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// logLevel backs the default handler so the level can change at runtime
// when the config file is edited.
var logLevel = new(slog.LevelVar)

// ParseLevel maps a configuration string to a slog level.
// Accepted values are "debug", "info", "warn"/"warning" and "error" (case-insensitive);
// anything else yields info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetupLogger installs the global slog default logger.
//
// format: "json"  → JSONHandler (production)
//
//	anything else → TextHandler (local development)
//
// Every slog.Info/Warn/Error call in the application goes through the
// installed default, so no *slog.Logger is carried in context.
func SetupLogger(format, level string) {
	lvl := ParseLevel(level)
	logLevel.Set(lvl)

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

// SetLogLevel changes the level of the logger installed by SetupLogger.
func SetLogLevel(level string) {
	lvl := ParseLevel(level)
	if logLevel.Level() == lvl {
		return
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

// CurrentLogLevel reports the active level.
func CurrentLogLevel() slog.Level {
	return logLevel.Level()
}
