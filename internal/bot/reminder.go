package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourname/dolgi-bot/internal/debt"
	"github.com/yourname/dolgi-bot/internal/domain"
)

// RunReminderWorker периодически проверяет сроки возврата и шлёт
// напоминания. Кнопка «Отложить» переносит напоминание на завтра.
func (h *Handler) RunReminderWorker(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.ReminderCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.remindAll(ctx)
		}
	}
}

func (h *Handler) remindAll(ctx context.Context) {
	ids, err := h.store.AllUserIDs(ctx)
	if err != nil {
		log.Printf("reminder: list users: %v", err)
		return
	}
	now := time.Now()

	for _, userID := range ids {
		snap, err := h.store.Read(ctx, userID)
		if err != nil {
			log.Printf("reminder: read %d: %v", userID, err)
			continue
		}
		if !snap.Settings.RemindersEnabled {
			continue
		}

		failed := false
		for _, t := range []domain.ListType{domain.ListIOwe, domain.ListOweMe} {
			for _, d := range snap.List(t) {
				if !h.remindDue(userID, snap, d, t, now) {
					failed = true
				}
			}
			if failed {
				break
			}
		}
		if failed {
			// Пользователь недоступен (заблокировал бота) — выключаем
			// напоминания, чтобы не долбить его каждый тик.
			snap.Settings.RemindersEnabled = false
			if err := h.store.Write(ctx, userID, snap); err != nil {
				log.Printf("reminder: disable for %d: %v", userID, err)
			}
		}
	}
}

// remindDue шлёт напоминание по одному долгу; false — доставка не удалась.
func (h *Handler) remindDue(userID int64, snap *domain.Snapshot, d *domain.Debt, t domain.ListType, now time.Time) bool {
	if d.Status != domain.StatusActive && d.Status != domain.StatusManual {
		return true
	}
	if d.DueDate == "" {
		return true
	}
	if d.SnoozedUntil != nil && now.Before(*d.SnoozedUntil) {
		return true
	}
	due, ok := domain.ParseDueDate(d.DueDate)
	if !ok {
		return true
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysLeft := int(due.Sub(today).Hours() / 24)
	if daysLeft > snap.Settings.ReminderDaysBefore {
		return true
	}

	direction := "вам должен"
	if t == domain.ListIOwe {
		direction = "вы должны"
	}
	var text string
	switch {
	case daysLeft < 0:
		text = fmt.Sprintf("⏰ Долг просрочен: %s %s %s %s (срок был %s).",
			html.EscapeString(snap.PartyName(d)), direction, d.Amount.StringFixed(2), d.Currency, d.DueDate)
	case daysLeft == 0:
		text = fmt.Sprintf("⏰ Сегодня срок долга: %s %s %s %s.",
			html.EscapeString(snap.PartyName(d)), direction, d.Amount.StringFixed(2), d.Currency)
	default:
		text = fmt.Sprintf("⏰ Через %d дн. срок долга: %s %s %s %s.",
			daysLeft, html.EscapeString(snap.PartyName(d)), direction, d.Amount.StringFixed(2), d.Currency)
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("💤 Отложить на завтра", debt.Token(debt.VerbSnooze, d.ID)),
		},
	)
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("reminder to %d: %v", userID, err)
		return false
	}
	return true
}
