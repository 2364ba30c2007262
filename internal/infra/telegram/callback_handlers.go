// internal/infra/telegram/callback_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"deadline_notification_bot/internal/app"
	"deadline_notification_bot/internal/domain/notification"
	idb "deadline_notification_bot/internal/infra/database"

	"gopkg.in/telebot.v3"
)

// RegisterCallbackHandlers wires the inline-keyboard callbacks: deadline
// deletion confirmation and notification threshold toggles.
func RegisterCallbackHandlers(ctx context.Context, b *telebot.Bot, deadlineService *app.DeadlineService) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		// telebot prefixes Data()-built callbacks with "\f".
		data := strings.TrimPrefix(c.Callback().Data, "\f")

		switch {
		case strings.HasPrefix(data, "del_yes_"):
			idStr := strings.TrimPrefix(data, "del_yes_")
			deadlineID, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				c.Bot().OnError(fmt.Errorf("invalid deadline id '%s' in delete callback: %w", idStr, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Ошибка обработки ответа."})
			}

			err = deadlineService.DeleteDeadline(ctx, c.Sender().ID, deadlineID)
			if err != nil {
				if err == idb.ErrDeadlineNotFound || err == app.ErrNotOwner {
					// Stale button, e.g. pressed twice.
					return c.Respond(&telebot.CallbackResponse{Text: "Дедлайн уже удалён."})
				}
				c.Bot().OnError(fmt.Errorf("error deleting deadline %d: %w", deadlineID, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка."})
			}
			if err := c.Edit(fmt.Sprintf("Дедлайн №%d удалён.", deadlineID)); err != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Удалено."})
			}
			return c.Respond()

		case data == "del_no":
			if err := c.Edit("Удаление отменено."); err != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Отменено."})
			}
			return c.Respond()

		case strings.HasPrefix(data, "ntf_"):
			threshold := notification.Threshold(strings.TrimPrefix(data, "ntf_"))
			settings, err := deadlineService.ToggleThreshold(ctx, c.Sender().ID, threshold)
			if err != nil {
				c.Bot().OnError(fmt.Errorf("error toggling threshold %s: %w", threshold, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Произошла ошибка."})
			}
			text, markup := settingsMessage(settings)
			if err := c.Edit(text, markup); err != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Настройки обновлены."})
			}
			return c.Respond()
		}

		c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
		return c.Respond(&telebot.CallbackResponse{Text: "Неизвестное действие."})
	})
}
