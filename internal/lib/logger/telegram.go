package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// Alerter is anything that can push a plain-text alert to the admin channel.
type Alerter interface {
	SendMessage(msg string)
}

// telegramHandler fans records at or above minLevel out to the admin
// Telegram chat in addition to the wrapped handler.
type telegramHandler struct {
	next     slog.Handler
	alerter  Alerter
	minLevel slog.Level
}

// SetupTelegramHandler wraps an existing logger so that records at or above
// minLevel are also delivered to the Telegram admin chat.
func SetupTelegramHandler(log *slog.Logger, alerter Alerter, minLevel slog.Level) *slog.Logger {
	return slog.New(&telegramHandler{
		next:     log.Handler(),
		alerter:  alerter,
		minLevel: minLevel,
	})
}

func (h *telegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *telegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError && record.Level >= h.minLevel {
		text := fmt.Sprintf("*%s*: %s", record.Level.String(), record.Message)
		record.Attrs(func(attr slog.Attr) bool {
			text += fmt.Sprintf("\n%s: %v", attr.Key, attr.Value)
			return true
		})
		h.alerter.SendMessage(text)
	}
	return h.next.Handle(ctx, record)
}

func (h *telegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &telegramHandler{next: h.next.WithAttrs(attrs), alerter: h.alerter, minLevel: h.minLevel}
}

func (h *telegramHandler) WithGroup(name string) slog.Handler {
	return &telegramHandler{next: h.next.WithGroup(name), alerter: h.alerter, minLevel: h.minLevel}
}
