package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"deadline_notification_bot/internal/app"
	"deadline_notification_bot/internal/domain/notification"
	idb "deadline_notification_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const dueInputLayout = "02.01.2006 15:04"

// RegisterDeadlineHandlers registers the CRUD and settings commands. All
// due instants entered by the user are parsed in the user's configured
// timezone and stored in UTC.
func RegisterDeadlineHandlers(ctx context.Context, b *telebot.Bot, deadlineService *app.DeadlineService, baseLogger *logrus.Entry) {
	b.Handle("/add", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/add",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		// Expected format: /add <ДД.ММ.ГГГГ> <ЧЧ:ММ> <название> [| описание]
		if len(args) < 3 {
			return c.Send("Неверный формат команды. Используйте: /add <ДД.ММ.ГГГГ> <ЧЧ:ММ> <название>")
		}

		settings, err := deadlineService.GetSettings(ctx, c.Sender().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to load settings")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}

		dueAt, err := parseDueInput(args[0], args[1], settings.Timezone)
		if err != nil {
			return c.Send("Не удалось разобрать дату и время. Формат: ДД.ММ.ГГГГ ЧЧ:ММ")
		}

		title, description := splitTitleDescription(strings.Join(args[2:], " "))

		d, err := deadlineService.CreateDeadline(ctx, c.Sender().ID, title, description, dueAt)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch err {
			case app.ErrTitleEmpty:
				return c.Send("Ошибка: название не может быть пустым.")
			case app.ErrTitleTooLong:
				return c.Send("Ошибка: название слишком длинное.")
			case app.ErrDescriptionTooLong:
				return c.Send("Ошибка: описание слишком длинное.")
			case app.ErrDueInPast:
				return c.Send("Ошибка: срок должен быть в будущем.")
			default:
				logWithError.Error("Failed to create deadline")
				return c.Send("Произошла ошибка при добавлении дедлайна.")
			}
		}

		handlerLogger.WithField("deadline_id", d.ID).Info("Deadline created")
		return c.Send(fmt.Sprintf("Дедлайн «%s» добавлен. Срок: %s (№%d)",
			d.Title, notification.FormatInZone(d.DueAt, settings.Timezone), d.ID))
	})

	b.Handle("/list", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/list",
			"sender_id": c.Sender().ID,
		})

		settings, err := deadlineService.GetSettings(ctx, c.Sender().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to load settings")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}

		deadlines, err := deadlineService.ListDeadlines(ctx, c.Sender().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to list deadlines")
			return c.Send("Произошла ошибка при получении списка дедлайнов.")
		}
		if len(deadlines) == 0 {
			return c.Send("У вас пока нет дедлайнов. Добавьте первый командой /add")
		}

		var sb strings.Builder
		sb.WriteString("Ваши дедлайны:\n")
		for _, d := range deadlines {
			status := ""
			if !d.IsActive {
				status = " (завершён)"
			}
			sb.WriteString(fmt.Sprintf("№%d — «%s», срок %s%s\n",
				d.ID, d.Title, notification.FormatInZone(d.DueAt, settings.Timezone), status))
		}
		return c.Send(sb.String())
	})

	b.Handle("/edit", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/edit",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		// Expected format: /edit <номер> <ДД.ММ.ГГГГ> <ЧЧ:ММ>
		if len(args) != 3 {
			return c.Send("Неверный формат команды. Используйте: /edit <номер> <ДД.ММ.ГГГГ> <ЧЧ:ММ>")
		}

		deadlineID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Ошибка: номер дедлайна должен быть числом.")
		}

		settings, err := deadlineService.GetSettings(ctx, c.Sender().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to load settings")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}

		newDueAt, err := parseDueInput(args[1], args[2], settings.Timezone)
		if err != nil {
			return c.Send("Не удалось разобрать дату и время. Формат: ДД.ММ.ГГГГ ЧЧ:ММ")
		}

		d, err := deadlineService.Reschedule(ctx, c.Sender().ID, deadlineID, newDueAt)
		if err != nil {
			logWithError := handlerLogger.WithError(err).WithField("deadline_id", deadlineID)
			switch err {
			case idb.ErrDeadlineNotFound, app.ErrNotOwner:
				return c.Send(fmt.Sprintf("Дедлайн №%d не найден.", deadlineID))
			case app.ErrDueInPast:
				return c.Send("Ошибка: новый срок должен быть в будущем.")
			default:
				logWithError.Error("Failed to reschedule deadline")
				return c.Send("Произошла ошибка при переносе дедлайна.")
			}
		}

		handlerLogger.WithField("deadline_id", d.ID).Info("Deadline rescheduled, ledger invalidated")
		return c.Send(fmt.Sprintf("Дедлайн «%s» перенесён на %s. Напоминания будут рассчитаны заново.",
			d.Title, notification.FormatInZone(d.DueAt, settings.Timezone)))
	})

	b.Handle("/delete", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/delete",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Неверный формат команды. Используйте: /delete <номер>")
		}
		deadlineID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Ошибка: номер дедлайна должен быть числом.")
		}

		replyMarkup := &telebot.ReplyMarkup{}
		btnYes := replyMarkup.Data("Да, удалить", fmt.Sprintf("del_yes_%d", deadlineID))
		btnNo := replyMarkup.Data("Отмена", "del_no")
		replyMarkup.Inline(replyMarkup.Row(btnYes, btnNo))

		return c.Send(fmt.Sprintf("Удалить дедлайн №%d? Напоминания по нему тоже будут удалены.", deadlineID),
			&telebot.SendOptions{ReplyMarkup: replyMarkup})
	})

	b.Handle("/timezone", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/timezone",
			"sender_id": c.Sender().ID,
		})

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Неверный формат команды. Используйте: /timezone <зона>, например /timezone Europe/Moscow")
		}

		settings, err := deadlineService.SetTimezone(ctx, c.Sender().ID, args[0])
		if err != nil {
			if err == app.ErrUnknownTimezone {
				return c.Send("Неизвестный часовой пояс. Используйте имя из базы IANA, например Europe/Moscow.")
			}
			handlerLogger.WithError(err).Error("Failed to set timezone")
			return c.Send("Произошла ошибка при установке часового пояса.")
		}

		handlerLogger.WithField("timezone", settings.Timezone).Info("Timezone updated")
		return c.Send(fmt.Sprintf("Часовой пояс установлен: %s. Он влияет только на отображение времени.", settings.Timezone))
	})

	b.Handle("/notifications", func(c telebot.Context) error {
		settings, err := deadlineService.GetSettings(ctx, c.Sender().ID)
		if err != nil {
			baseLogger.WithError(err).WithField("sender_id", c.Sender().ID).Error("Failed to load settings")
			return c.Send("Произошла ошибка. Пожалуйста, попробуйте позже.")
		}
		text, markup := settingsMessage(settings)
		return c.Send(text, &telebot.SendOptions{ReplyMarkup: markup})
	})
}

// settingsMessage renders the notification settings with inline toggle
// buttons, one per threshold.
func settingsMessage(s *notification.Settings) (string, *telebot.ReplyMarkup) {
	text := fmt.Sprintf("Настройки напоминаний (часовой пояс: %s).\nНажмите, чтобы включить или выключить:", s.Timezone)

	markup := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	thresholds := append([]notification.Threshold{}, notification.AllLeadThresholds...)
	thresholds = append(thresholds, notification.ThresholdOnDue)
	for _, t := range thresholds {
		mark := "❌"
		if s.Enabled(t) {
			mark = "✅"
		}
		btn := markup.Data(fmt.Sprintf("%s %s", mark, t.Label()), "ntf_"+string(t))
		rows = append(rows, markup.Row(btn))
	}
	markup.Inline(rows...)
	return text, markup
}

func parseDueInput(dateArg, timeArg, tz string) (time.Time, error) {
	return time.ParseInLocation(dueInputLayout, dateArg+" "+timeArg, notification.LocationFor(tz))
}

// splitTitleDescription splits "название | описание" input; the description
// part is optional.
func splitTitleDescription(input string) (string, string) {
	parts := strings.SplitN(input, "|", 2)
	title := strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		return title, strings.TrimSpace(parts[1])
	}
	return title, ""
}
