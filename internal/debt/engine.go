// Package debt реализует движок синхронизации долгов между двумя
// независимыми записями. Записи двух сторон никогда не блокируются
// вместе: каждая операция читает оба снимка, проверяет состояние
// зеркала на момент чтения и пишет стороны по очереди. Рассинхрон
// лечится на месте: осиротевшая запись удаляется или возвращается в
// active, и пользователю явно сообщается об ошибке синхронизации —
// движок никогда не угадывает, чья сторона «правильная».
package debt

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/notify"
	"github.com/yourname/dolgi-bot/internal/store"
)

// Result — исход операции для пользователя. Success=false всегда
// сопровождается объясняющим сообщением.
type Result struct {
	Success bool
	Message string
}

func fail(msg string) Result    { return Result{Success: false, Message: msg} }
func succeed(msg string) Result { return Result{Success: true, Message: msg} }

type Engine struct {
	store store.Store
	disp  notify.Dispatcher

	now func() time.Time
}

func New(s store.Store, d notify.Dispatcher) *Engine {
	return &Engine{store: s, disp: d, now: time.Now}
}

// sendOutcome заставляет вызывающего явно обработать судьбу уведомления.
type sendOutcome int

const (
	sentOK sendOutcome = iota
	sentSuppressed
	sentFailed
)

const undeliveredCaveat = "\n<i>(Не удалось уведомить другую сторону)</i>"

// send — единственная точка отправки уведомлений: сначала шлюз
// настроек получателя, затем диспетчер. Переход состояния к этому
// моменту уже применён, исход доставки только дописывается в ответ.
func (e *Engine) send(ctx context.Context, recipientID int64, enabled bool, text string, controls notify.Controls) sendOutcome {
	if !enabled {
		return sentSuppressed
	}
	if e.disp.Send(ctx, recipientID, text, controls) == notify.Undelivered {
		return sentFailed
	}
	return sentOK
}

func fmtAmount(a decimal.Decimal, currency string) string {
	return a.StringFixed(2) + " " + currency
}

// fmtDate переводит хранимую дату DD-MM-YYYY в вид DD.MM.YYYY.
func fmtDate(s string) string {
	if s == "" {
		return "Нет"
	}
	if len(s) == 10 {
		return s[0:2] + "." + s[3:5] + "." + s[6:10]
	}
	return s
}

func fieldTitle(field string) string {
	switch field {
	case "amount":
		return "Сумма"
	case "currency":
		return "Валюта"
	case "dueDate":
		return "Дата возврата"
	case "partyIdentifier":
		return "Контакт"
	default:
		return field
	}
}

func fmtFieldValue(field, value, currency string) string {
	if value == "" {
		return "Нет"
	}
	switch field {
	case "amount":
		return value + " " + currency
	case "dueDate":
		return fmtDate(value)
	default:
		return value
	}
}
