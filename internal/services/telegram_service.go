package services

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"samadhaan/internal/models"
)

// TelegramService шлёт оповещения безопасности в чат дежурных.
type TelegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramService calls getMe once to validate the token. apiEndpoint may
// be empty for the public Bot API.
func NewTelegramService(botToken string, chatID int64, apiEndpoint string) (*TelegramService, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, apiEndpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramService{bot: bot, chatID: chatID}, nil
}

func (t *TelegramService) Name() string { return "telegram" }

func alertText(ev models.SecurityEvent) string {
	return fmt.Sprintf("<b>Security alert</b>: %s\nuser_id=%d phone=%s\n%s",
		html.EscapeString(string(ev.Kind)), ev.UserID, html.EscapeString(ev.Phone), html.EscapeString(ev.Detail))
}

func (t *TelegramService) Deliver(_ context.Context, ev models.SecurityEvent) error {
	msg := tgbotapi.NewMessage(t.chatID, alertText(ev))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
