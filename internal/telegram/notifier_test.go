package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestNotifierSend(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifierWithBot(bot, 42)

	require.NoError(t, n.Send("account rate limited"))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "account rate limited", msg.Text)
}

func TestNotifierDropsEmptyText(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifierWithBot(bot, 42)

	require.NoError(t, n.Send("   "))
	assert.Empty(t, bot.sent)
}
