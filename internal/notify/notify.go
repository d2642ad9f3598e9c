// Package notify delivers out-of-band termination alerts to proctors.
// Channels implement types.Notifier; the monitor fans out to every
// registered channel and treats failures as non-fatal.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/proctord/internal/types"
)

// Compile-time interface compliance checks.
var _ types.Notifier = (*Telegram)(nil)
var _ types.Notifier = (*Log)(nil)

// Telegram pushes alerts to a fixed proctor chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram channel for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Notify sends the alert message to the proctor chat.
func (t *Telegram) Notify(_ context.Context, callID types.CallID, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert for %s: %w", callID, err)
	}
	return nil
}

// Log is the always-available channel: alerts land in the server log.
type Log struct{}

// Notify writes the alert to the structured log.
func (Log) Notify(_ context.Context, callID types.CallID, message string) error {
	slog.Warn("proctor alert", "call_id", string(callID), "message", message)
	return nil
}
