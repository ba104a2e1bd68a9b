package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"StayDesk/internal/lib/sl"
)

// TgBot pushes operational alerts (pending support tickets, error-level
// log records) to the admin Telegram chat.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botUsername string
	adminId     int64
}

func NewTgBot(botName, apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		adminId:     adminId,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

// SendMessage delivers an alert to the admin chat.
func (t *TgBot) SendMessage(msg string) {
	t.plainResponse(t.adminId, msg)
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	sanitized := sanitize(text, false)
	if sanitized == "" {
		t.log.With(
			slog.Int64("id", chatId),
		).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(
			slog.Int64("id", chatId),
		).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(
				slog.Int64("id", chatId),
			).Error("sending safe message", sl.Err(err))
		}
	}
}

func sanitize(input string, preserveLinks bool) string {
	reservedChars := "\\`_{}#+-.!|()[]"
	if preserveLinks {
		reservedChars = "\\`_{}#+-.!|"
	}

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}

	return sanitized
}
