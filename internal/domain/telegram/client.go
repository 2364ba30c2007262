package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for sending messages via a Telegram bot.
// The dispatcher depends on it instead of the bot library directly, so tests
// can substitute a scripted transport.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
