// Package notify delivers alerts to Telegram chats.
package notify

import (
	"errors"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrNoChats = errors.New("telegram: no chat ids configured")

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram broadcasts Markdown messages to a fixed set of chats.
type Telegram struct {
	bot     Sender
	chatIDs []int64
}

// NewTelegram authenticates the bot token and returns a broadcaster.
func NewTelegram(token string, chatIDs []int64) (*Telegram, error) {
	if len(chatIDs) == 0 {
		return nil, ErrNoChats
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Printf("telegram: authorized as @%s", bot.Self.UserName)
	return NewTelegramWithSender(bot, chatIDs), nil
}

// NewTelegramWithSender wires a custom sender (tests, proxies).
func NewTelegramWithSender(bot Sender, chatIDs []int64) *Telegram {
	return &Telegram{bot: bot, chatIDs: append([]int64(nil), chatIDs...)}
}

// Send implements monitor.AlertSink. It tries every chat and returns the
// first failure.
func (t *Telegram) Send(message string) error {
	var firstErr error
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, message)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(msg); err != nil {
			log.Printf("telegram: send to %d failed: %v", chatID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
