// Package notify отделяет движок синхронизации от транспорта: движок
// отдаёт текст и кнопки, диспетчер доставляет их как умеет. Исход
// доставки возвращается явным значением и никогда не поднимается
// ошибкой наружу — недоставленное уведомление не откатывает переход
// состояния.
package notify

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Delivery int

const (
	Delivered Delivery = iota
	Undelivered
)

// Button — транспортно-независимая inline-кнопка.
type Button struct {
	Text string
	Data string
}

// Controls — ряды кнопок под сообщением; nil = без кнопок.
type Controls [][]Button

func Row(buttons ...Button) Controls {
	return Controls{buttons}
}

type Dispatcher interface {
	Send(ctx context.Context, recipientID int64, text string, controls Controls) Delivery
}

// Telegram доставляет уведомления через Bot API в личный чат.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) Send(_ context.Context, recipientID int64, text string, controls Controls) Delivery {
	msg := tgbotapi.NewMessage(recipientID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if controls != nil {
		msg.ReplyMarkup = toMarkup(controls)
	}
	if _, err := t.api.Send(msg); err != nil {
		// Заблокировавший бота пользователь — обычное дело, не авария.
		log.Printf("notify %d failed: %v", recipientID, err)
		return Undelivered
	}
	return Delivered
}

func toMarkup(controls Controls) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(controls))
	for _, row := range controls {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
