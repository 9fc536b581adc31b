package bot

import (
	"context"
	"log"
	"strings"
)

const helpText = `Я помогаю вести долги и синхронизировать их с другой стороной.

Команды:
/start — главное меню
/help — эта справка
/linkme @username — связать долги, записанные на ваше старое имя

Долг, добавленный по @username, становится связанным: обе стороны видят его и подтверждают изменения. Долг на произвольное имя — ручной, он только ваш.`

func (h *Handler) handleCommand(ctx context.Context, userID int64, text string) {
	cmd := text
	args := ""
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmd, args = text[:i], strings.TrimSpace(text[i+1:])
	}

	switch cmd {
	case "/start":
		h.replyKb(userID, "Привет! Я бот для учёта долгов.\nВыберите действие в меню.", mainMenu())
	case "/help":
		h.reply(userID, helpText)
	case "/linkme":
		if args == "" {
			h.reply(userID, "Используйте: /linkme @username — имя, на которое вас могли записать.")
			return
		}
		_, res, err := h.engine.LinkByOldUsername(ctx, userID, args)
		if err != nil {
			log.Printf("linkme %d: %v", userID, err)
			h.reply(userID, "Произошла внутренняя ошибка. Попробуйте позже.")
			return
		}
		h.reply(userID, res.Message)
	default:
		h.reply(userID, "Неизвестная команда. /help")
	}
}
