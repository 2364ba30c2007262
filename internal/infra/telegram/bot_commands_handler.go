// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const helpText = `Я помогу не пропустить ваши дедлайны.

Команды:
/add <ДД.ММ.ГГГГ> <ЧЧ:ММ> <название> — добавить дедлайн (время в вашем часовом поясе)
/list — показать ваши дедлайны
/edit <номер> <ДД.ММ.ГГГГ> <ЧЧ:ММ> — перенести дедлайн
/delete <номер> — удалить дедлайн
/notifications — настроить напоминания
/timezone <зона> — установить часовой пояс, например Europe/Moscow
/help — это сообщение`

func RegisterBotCommands(b *telebot.Bot, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		startHelpLogger.WithFields(logrus.Fields{
			"command":   "/start",
			"sender_id": c.Sender().ID,
		}).Info("Processing /start command")
		return c.Send("Привет, " + c.Sender().FirstName + "! " + helpText)
	})

	b.Handle("/help", func(c telebot.Context) error {
		startHelpLogger.WithFields(logrus.Fields{
			"command":   "/help",
			"sender_id": c.Sender().ID,
		}).Info("Processing /help command")
		return c.Send(helpText)
	})
}
