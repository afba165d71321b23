package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var std = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Init installs the JSON logger. Level comes from LOG_LEVEL.
func Init() {
	InitWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
	Info("logger initialized", nil)
}

// InitWithWriter is Init with an explicit sink, used by tests.
func InitWithWriter(w io.Writer, level string) {
	std = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(std)
}

func parseLevel(level string) slog.Level {
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

func Debug(msg string, fields map[string]any) {
	log(slog.LevelDebug, msg, fields)
}

func Info(msg string, fields map[string]any) {
	log(slog.LevelInfo, msg, fields)
}

func Warn(msg string, fields map[string]any) {
	log(slog.LevelWarn, msg, fields)
}

func Error(msg string, fields map[string]any) {
	log(slog.LevelError, msg, fields)
}

// Fatal logs at error level, marked fatal, and exits.
func Fatal(msg string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["fatal"] = true
	log(slog.LevelError, msg, fields)
	os.Exit(1)
}

func log(level slog.Level, msg string, fields map[string]any) {
	ctx := context.Background()
	if !std.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	std.LogAttrs(ctx, level, msg, attrs...)
}
