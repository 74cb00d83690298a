// Package telegram delivers operational alerts to a Telegram chat.
package telegram

import (
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the subset of the Telegram client the notifier needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends plain-text alert messages to a single chat.
type Notifier struct {
	bot    BotAPI
	chatID int64
	mu     sync.Mutex
}

// NewNotifier connects to the Telegram bot API. The token is validated by
// the API call inside tgbotapi.NewBotAPI.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// NewNotifierWithBot wires an existing client. Used by tests.
func NewNotifierWithBot(bot BotAPI, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// Send delivers one message. Empty text is dropped silently.
func (n *Notifier) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	_, err := n.bot.Send(msg)
	return err
}
