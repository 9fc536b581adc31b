package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/domain"
)

func statusText(s domain.Status) string {
	switch s {
	case domain.StatusManual:
		return "ручной"
	case domain.StatusPendingConfirmation:
		return "ждет связи"
	case domain.StatusPendingApproval:
		return "ждет принятия"
	case domain.StatusActive:
		return "активен"
	case domain.StatusPendingDeletion:
		return "ждет удаления"
	case domain.StatusPendingEdit:
		return "ждет изменения"
	}
	return string(s)
}

func actionText(a domain.Action) string {
	switch a {
	case domain.ActionRepaid:
		return "Погашен"
	case domain.ActionPartialRepaid:
		return "Частично погашен"
	case domain.ActionDeleted:
		return "Удален"
	case domain.ActionEdited:
		return "Изменен"
	}
	return string(a)
}

func fmtDue(s string) string {
	if s == "" {
		return ""
	}
	if len(s) == 10 {
		return " до " + s[0:2] + "." + s[3:5] + "." + s[6:10]
	}
	return " до " + s
}

func (h *Handler) showDebts(ctx context.Context, userID int64) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}

	var b strings.Builder
	empty := true

	writeList := func(title string, t domain.ListType) {
		list := snap.List(t)
		if len(list) == 0 {
			return
		}
		empty = false
		b.WriteString("<b>" + title + "</b>\n")
		for _, d := range list {
			b.WriteString(fmt.Sprintf("• %s — %s %s%s (%s)\n",
				html.EscapeString(snap.PartyName(d)),
				d.Amount.StringFixed(2), d.Currency, fmtDue(d.DueDate), statusText(d.Status)))
		}
		b.WriteString("\n")
	}
	writeList("📤 Я должен:", domain.ListIOwe)
	writeList("📥 Мне должны:", domain.ListOweMe)

	if empty {
		h.reply(userID, "Долгов нет 👍")
		return
	}

	if snap.Settings.ShowNetBalance {
		b.WriteString("<b>Баланс по валютам:</b>\n")
		for cur, net := range netBalance(snap) {
			sign := ""
			if net.IsPositive() {
				sign = "+"
			}
			b.WriteString(fmt.Sprintf("  %s: %s%s\n", cur, sign, net.StringFixed(2)))
		}
	}

	h.reply(userID, strings.TrimRight(b.String(), "\n"))
}

// netBalance считает «мне должны минус я должен» по каждой валюте.
// Учитываются только долги, чья сумма уже согласована.
func netBalance(snap *domain.Snapshot) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, d := range snap.Debts.OweMe {
		if d.Status == domain.StatusActive || d.Status == domain.StatusManual {
			out[d.Currency] = out[d.Currency].Add(d.Amount)
		}
	}
	for _, d := range snap.Debts.IOwe {
		if d.Status == domain.StatusActive || d.Status == domain.StatusManual {
			out[d.Currency] = out[d.Currency].Sub(d.Amount)
		}
	}
	return out
}

const historyPageSize = 5

func (h *Handler) showHistory(ctx context.Context, userID int64, page int) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}
	total := len(snap.History)
	if total == 0 {
		h.reply(userID, "История пуста.")
		return
	}

	pages := (total + historyPageSize - 1) / historyPageSize
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	// Новые записи сверху.
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>📜 История (стр. %d/%d):</b>\n\n", page+1, pages))
	start := total - 1 - page*historyPageSize
	end := start - historyPageSize + 1
	if end < 0 {
		end = 0
	}
	for i := start; i >= end; i-- {
		e := snap.History[i]
		b.WriteString(fmt.Sprintf("%s — %s, %s %s",
			e.ResolvedDate.Format("02.01.2006"), actionText(e.Action),
			e.Amount.StringFixed(2), e.Currency))
		b.WriteString(" (" + html.EscapeString(e.PartyIdentifier) + ")")
		switch e.Action {
		case domain.ActionPartialRepaid:
			b.WriteString(fmt.Sprintf("\n  погашено %s, остаток %s",
				e.RepaidAmount.StringFixed(2), e.RemainingAmount.StringFixed(2)))
		case domain.ActionEdited:
			b.WriteString(fmt.Sprintf("\n  %s: %s → %s",
				html.EscapeString(e.EditedField), html.EscapeString(e.OriginalValue), html.EscapeString(e.NewValue)))
		}
		b.WriteString("\n\n")
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("history_page_%d", page-1)))
	}
	if page < pages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("history_page_%d", page+1)))
	}
	if len(nav) == 0 {
		h.reply(userID, strings.TrimRight(b.String(), "\n"))
		return
	}
	h.replyKb(userID, strings.TrimRight(b.String(), "\n"), tgbotapi.NewInlineKeyboardMarkup(nav))
}
