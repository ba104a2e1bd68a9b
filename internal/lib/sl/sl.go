package sl

import (
	"log/slog"
)

// Err wraps an error into a slog attribute.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Module tags a logger with the component name that owns it.
func Module(name string) slog.Attr {
	return slog.Attr{
		Key:   "module",
		Value: slog.StringValue(name),
	}
}

// Secret logs a sensitive value in redacted form, keeping only a short prefix.
func Secret(key, value string) slog.Attr {
	redacted := "empty"
	if len(value) > 8 {
		redacted = value[:4] + "..." + value[len(value)-2:]
	} else if value != "" {
		redacted = "***"
	}
	return slog.Attr{
		Key:   key,
		Value: slog.StringValue(redacted),
	}
}
