package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger builds the root slog logger for the given environment.
// Local runs log human-readable text at debug level to stdout; dev and prod
// log JSON to a file under logDir, falling back to stdout if the file
// cannot be opened.
func SetupLogger(env string, logDir string) *slog.Logger {
	var out io.Writer = os.Stdout

	if env != envLocal && logDir != "" {
		path := filepath.Join(logDir, "staydesk.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stdout, file)
		}
	}

	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
