package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender connects to the Bot API and verifies the token.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	return newTelegramSender(token, chatID, tgbotapi.APIEndpoint)
}

func newTelegramSender(token string, chatID int64, endpoint string) (*TelegramSender, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	bot.Debug = false
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send ignores ctx: the Bot API client has no per-request context and relies
// on its HTTP client timeout.
func (t *TelegramSender) Send(_ context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s\n%s", title, message))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
