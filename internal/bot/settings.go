package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourname/dolgi-bot/internal/domain"
)

func onOff(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

var notifToggles = []struct {
	key   string
	title string
	field func(*domain.NotificationSettings) *bool
}{
	{"newpending", "Новый долг", func(n *domain.NotificationSettings) *bool { return &n.OnNewPending }},
	{"accepted", "Долг принят", func(n *domain.NotificationSettings) *bool { return &n.OnAccepted }},
	{"rejected", "Долг отклонен", func(n *domain.NotificationSettings) *bool { return &n.OnRejected }},
	{"repaid", "Долг погашен", func(n *domain.NotificationSettings) *bool { return &n.OnRepaid }},
	{"delreq", "Запрос удаления", func(n *domain.NotificationSettings) *bool { return &n.OnDeleteRequest }},
	{"delok", "Удаление принято", func(n *domain.NotificationSettings) *bool { return &n.OnDeleteConfirm }},
	{"delno", "Удаление отклонено", func(n *domain.NotificationSettings) *bool { return &n.OnDeleteReject }},
	{"editreq", "Запрос изменения", func(n *domain.NotificationSettings) *bool { return &n.OnEditRequest }},
	{"editok", "Изменение принято", func(n *domain.NotificationSettings) *bool { return &n.OnEditConfirm }},
	{"editno", "Изменение отклонено", func(n *domain.NotificationSettings) *bool { return &n.OnEditReject }},
}

func (h *Handler) showSettings(ctx context.Context, userID int64) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}
	h.replyKb(userID, "⚙️ Настройки", settingsKeyboard(snap))
}

func settingsKeyboard(snap *domain.Snapshot) tgbotapi.InlineKeyboardMarkup {
	s := snap.Settings
	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("💱 Валюта по умолчанию: "+s.DefaultCurrency, "set_cur"),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(onOff(s.ShowNetBalance)+" Показывать баланс", "set_bal"),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⏰ Напоминания", "set_rem"),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🔔 Уведомления", "set_notif"),
		},
	)
}

func remindersKeyboard(s domain.Settings) tgbotapi.InlineKeyboardMarkup {
	days := []tgbotapi.InlineKeyboardButton{}
	for _, n := range []int{1, 3, 7} {
		label := fmt.Sprintf("за %d дн.", n)
		if s.ReminderDaysBefore == n {
			label = "• " + label
		}
		days = append(days, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("set_rem_days_%d", n)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(onOff(s.RemindersEnabled)+" Напоминания о сроках", "set_rem_toggle"),
		},
		days,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "set_menu"),
		},
	)
}

func notificationsKeyboard(s domain.Settings) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(notifToggles)+1)
	n := s.Notifications
	for _, t := range notifToggles {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(onOff(*t.field(&n))+" "+t.title, "set_notif_"+t.key),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "set_menu"),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) handleSettingsCallback(ctx context.Context, q *tgbotapi.CallbackQuery, data string) {
	userID := q.From.ID
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}

	write := func() bool {
		if err := h.store.Write(ctx, userID, snap); err != nil {
			h.fatal(userID, err)
			return false
		}
		return true
	}

	switch {
	case data == "set_menu":
		h.editTo(q, "⚙️ Настройки", settingsKeyboard(snap))

	case data == "set_cur":
		h.editTo(q, "Выберите валюту по умолчанию:", currencyKeyboard("set_cur_"))

	case strings.HasPrefix(data, "set_cur_"):
		cur := strings.TrimPrefix(data, "set_cur_")
		if !domain.IsSupportedCurrency(cur) {
			return
		}
		snap.Settings.DefaultCurrency = cur
		if write() {
			h.editTo(q, "⚙️ Настройки", settingsKeyboard(snap))
		}

	case data == "set_bal":
		snap.Settings.ShowNetBalance = !snap.Settings.ShowNetBalance
		if write() {
			h.editTo(q, "⚙️ Настройки", settingsKeyboard(snap))
		}

	case data == "set_rem":
		h.editTo(q, "⏰ Напоминания о сроках возврата:", remindersKeyboard(snap.Settings))

	case data == "set_rem_toggle":
		snap.Settings.RemindersEnabled = !snap.Settings.RemindersEnabled
		if write() {
			h.editTo(q, "⏰ Напоминания о сроках возврата:", remindersKeyboard(snap.Settings))
		}

	case strings.HasPrefix(data, "set_rem_days_"):
		n, err := strconv.Atoi(strings.TrimPrefix(data, "set_rem_days_"))
		if err != nil || n < 1 {
			return
		}
		snap.Settings.ReminderDaysBefore = n
		if write() {
			h.editTo(q, "⏰ Напоминания о сроках возврата:", remindersKeyboard(snap.Settings))
		}

	case data == "set_notif":
		h.editTo(q, "🔔 Какие уведомления получать:", notificationsKeyboard(snap.Settings))

	case strings.HasPrefix(data, "set_notif_"):
		key := strings.TrimPrefix(data, "set_notif_")
		for _, t := range notifToggles {
			if t.key == key {
				p := t.field(&snap.Settings.Notifications)
				*p = !*p
				break
			}
		}
		if write() {
			h.editTo(q, "🔔 Какие уведомления получать:", notificationsKeyboard(snap.Settings))
		}
	}
}

func (h *Handler) editTo(q *tgbotapi.CallbackQuery, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(q.Message.Chat.ID, q.Message.MessageID, text, kb)
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("edit message for %d: %v", q.From.ID, err)
	}
}
