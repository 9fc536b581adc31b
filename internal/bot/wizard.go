package bot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourname/dolgi-bot/internal/debt"
	"github.com/yourname/dolgi-bot/internal/domain"
)

var cancelRow = []tgbotapi.InlineKeyboardButton{
	tgbotapi.NewInlineKeyboardButtonData("🚫 Отмена", "cancel_operation"),
}

// --- добавление долга ---

func (h *Handler) startAdd(ctx context.Context, userID int64) {
	h.sessions.start(userID, stepAddType)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📤 Я должен", "wz_type_iOwe"),
			tgbotapi.NewInlineKeyboardButtonData("📥 Мне должны", "wz_type_oweMe"),
		},
		cancelRow,
	)
	h.replyKb(userID, "Какой долг добавить?", kb)
}

func (h *Handler) handleWizardCallback(ctx context.Context, userID int64, data string) {
	sess, ok := h.sessions.get(userID)
	if !ok {
		h.reply(userID, "Действие устарело. Начните заново из меню.")
		return
	}

	switch {
	case strings.HasPrefix(data, "wz_type_"):
		if sess.Step != stepAddType {
			return
		}
		t := domain.ListType(strings.TrimPrefix(data, "wz_type_"))
		if t != domain.ListIOwe && t != domain.ListOweMe {
			return
		}
		sess.ListType = t
		sess.Step = stepAddParty
		h.promptParty(ctx, userID)

	case strings.HasPrefix(data, "wz_party_"):
		if sess.Step != stepAddParty {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "wz_party_"), 10, 64)
		if err != nil {
			return
		}
		snap, err := h.store.Read(ctx, userID)
		if err != nil {
			h.fatal(userID, err)
			return
		}
		name, ok := snap.KnownUsers[id]
		if !ok {
			h.reply(userID, "Контакт не найден. Введите имя вручную.")
			return
		}
		sess.PartyUserID = id
		sess.Party = name
		sess.Step = stepAddAmount
		h.reply(userID, "Введите сумму долга:")

	case strings.HasPrefix(data, "wz_cur_"):
		if sess.Step != stepAddCurrency {
			return
		}
		cur := strings.TrimPrefix(data, "wz_cur_")
		if !domain.IsSupportedCurrency(cur) {
			return
		}
		sess.Currency = cur
		sess.Step = stepAddDueDate
		kb := tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Без срока", "wz_skipdate"),
			},
			cancelRow,
		)
		h.replyKb(userID, "Введите дату возврата (ДД-ММ-ГГГГ) или пропустите:", kb)

	case data == "wz_skipdate":
		if sess.Step != stepAddDueDate {
			return
		}
		h.finishAdd(ctx, userID, sess, "")

	case strings.HasPrefix(data, "wz_pick_"):
		h.handlePick(ctx, userID, sess, strings.TrimPrefix(data, "wz_pick_"))

	case strings.HasPrefix(data, "wz_field_"):
		if sess.Step != stepEditField {
			return
		}
		field := strings.TrimPrefix(data, "wz_field_")
		sess.Field = field
		sess.Step = stepEditValue
		if field == domain.FieldCurrency {
			h.replyKb(userID, "Выберите новую валюту:", currencyKeyboard("wz_val_"))
			return
		}
		prompt := map[string]string{
			domain.FieldAmount:          "Введите новую сумму:",
			domain.FieldDueDate:         "Введите новую дату (ДД-ММ-ГГГГ) или «-» чтобы убрать срок:",
			domain.FieldPartyIdentifier: "Введите новое имя контакта:",
		}[field]
		h.reply(userID, prompt)

	case strings.HasPrefix(data, "wz_val_"):
		if sess.Step != stepEditValue {
			return
		}
		h.finishEdit(ctx, userID, sess, strings.TrimPrefix(data, "wz_val_"))
	}
}

func (h *Handler) handleSessionInput(ctx context.Context, userID int64, sess *session, text string) {
	switch sess.Step {
	case stepAddParty:
		sess.Party = text
		sess.Step = stepAddAmount
		h.reply(userID, "Введите сумму долга:")

	case stepAddAmount:
		if _, err := parseAmount(text); err != nil {
			h.reply(userID, "Неверная сумма. Пример: 1500 или 99.50")
			return
		}
		sess.Amount = text
		sess.Step = stepAddCurrency
		h.replyKb(userID, "Выберите валюту:", currencyKeyboard("wz_cur_"))

	case stepAddDueDate:
		if _, ok := domain.ParseDueDate(text); !ok {
			h.reply(userID, "Неверная дата. Формат: ДД-ММ-ГГГГ, например 31-12-2026.")
			return
		}
		h.finishAdd(ctx, userID, sess, text)

	case stepRepayAmount:
		amount, err := parseAmount(text)
		if err != nil {
			h.reply(userID, "Неверная сумма. Пример: 500 или 99.50")
			return
		}
		h.sessions.drop(userID)
		res, err := h.engine.Repay(ctx, userID, sess.DebtID, amount)
		if err != nil {
			h.fatal(userID, err)
			return
		}
		h.reply(userID, res.Message)

	case stepEditValue:
		h.finishEdit(ctx, userID, sess, text)

	default:
		h.sessions.drop(userID)
		h.reply(userID, "Не понял. Используйте меню или /help.")
	}
}

func (h *Handler) finishAdd(ctx context.Context, userID int64, sess *session, dueDate string) {
	h.sessions.drop(userID)
	amount, err := parseAmount(sess.Amount)
	if err != nil {
		h.reply(userID, "Неверная сумма, начните заново.")
		return
	}
	res, err := h.engine.Add(ctx, userID, debt.AddInput{
		Type:            sess.ListType,
		PartyIdentifier: sess.Party,
		PartyUserID:     sess.PartyUserID,
		Amount:          amount,
		Currency:        sess.Currency,
		DueDate:         dueDate,
	})
	if err != nil {
		h.fatal(userID, err)
		return
	}
	h.reply(userID, res.Message)
}

func (h *Handler) finishEdit(ctx context.Context, userID int64, sess *session, value string) {
	h.sessions.drop(userID)
	if sess.Field == domain.FieldDueDate && value == "-" {
		value = ""
	}
	res, err := h.engine.Edit(ctx, userID, sess.DebtID, sess.Field, value)
	if err != nil {
		h.fatal(userID, err)
		return
	}
	h.reply(userID, res.Message)
}

func (h *Handler) promptParty(ctx context.Context, userID int64) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	ids := make([]int64, 0, len(snap.KnownUsers))
	for id := range snap.KnownUsers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("👤 "+snap.KnownUsers[id], fmt.Sprintf("wz_party_%d", id)),
		})
	}
	rows = append(rows, cancelRow)

	h.replyKb(userID,
		"Введите @username (для связанного долга) или любое имя (для ручного), либо выберите контакт:",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// --- выбор долга для погашения/изменения/удаления ---

func (h *Handler) startPick(ctx context.Context, userID int64, st step) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range []domain.ListType{domain.ListIOwe, domain.ListOweMe} {
		for _, d := range snap.List(t) {
			if !pickable(st, d.Status) {
				continue
			}
			label := fmt.Sprintf("%s — %s %s (%s)",
				snap.PartyName(d), d.Amount.StringFixed(2), d.Currency, statusText(d.Status))
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(label, "wz_pick_"+d.ID),
			})
		}
	}
	if len(rows) == 0 {
		h.reply(userID, "Подходящих долгов нет.")
		return
	}
	rows = append(rows, cancelRow)

	h.sessions.start(userID, st)
	titles := map[step]string{
		stepRepayPick:  "Какой долг погасить?",
		stepEditPick:   "Какой долг изменить?",
		stepDeletePick: "Какой долг удалить?",
	}
	h.replyKb(userID, titles[st], tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func pickable(st step, s domain.Status) bool {
	switch st {
	case stepRepayPick, stepEditPick:
		return s == domain.StatusActive || s == domain.StatusManual
	case stepDeletePick:
		// Удалить можно и ожидающие: отзыв запроса тоже проходит здесь.
		return s != domain.StatusPendingEdit
	}
	return false
}

func (h *Handler) handlePick(ctx context.Context, userID int64, sess *session, debtID string) {
	switch sess.Step {
	case stepRepayPick:
		snap, err := h.store.Read(ctx, userID)
		if err != nil {
			h.fatal(userID, err)
			return
		}
		d, _, found := snap.FindByID(debtID)
		if !found {
			h.sessions.drop(userID)
			h.reply(userID, "Долг не найден. Возможно, он был изменен.")
			return
		}
		sess.DebtID = debtID
		sess.Step = stepRepayAmount
		h.reply(userID, fmt.Sprintf("Остаток: %s %s. Введите сумму погашения:",
			d.Amount.StringFixed(2), d.Currency))

	case stepEditPick:
		sess.DebtID = debtID
		sess.Step = stepEditField
		kb := tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Сумма", "wz_field_"+domain.FieldAmount),
				tgbotapi.NewInlineKeyboardButtonData("Валюта", "wz_field_"+domain.FieldCurrency),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Дата возврата", "wz_field_"+domain.FieldDueDate),
				tgbotapi.NewInlineKeyboardButtonData("Контакт", "wz_field_"+domain.FieldPartyIdentifier),
			},
			cancelRow,
		)
		h.replyKb(userID, "Что изменить?", kb)

	case stepDeletePick:
		h.sessions.drop(userID)
		h.performDelete(ctx, userID, debtID)
	}
}

// performDelete выбирает операцию по статусу: ручные удаляются сразу,
// связанные — через запрос, ожидающие — отзывом запроса.
func (h *Handler) performDelete(ctx context.Context, userID int64, debtID string) {
	snap, err := h.store.Read(ctx, userID)
	if err != nil {
		h.fatal(userID, err)
		return
	}
	d, _, found := snap.FindByID(debtID)
	if !found {
		h.reply(userID, "Долг не найден. Возможно, он был изменен.")
		return
	}

	var res debt.Result
	switch d.Status {
	case domain.StatusManual, domain.StatusPendingConfirmation:
		res, err = h.engine.DeleteManual(ctx, userID, debtID)
	case domain.StatusPendingApproval:
		res, err = h.engine.CancelPending(ctx, userID, debtID)
	case domain.StatusPendingDeletion:
		res, err = h.engine.CancelDeletionRequest(ctx, userID, debtID)
	case domain.StatusActive:
		res, err = h.engine.RequestDeletion(ctx, userID, debtID)
	default:
		h.reply(userID, "Этот долг сейчас нельзя удалить.")
		return
	}
	if err != nil {
		h.fatal(userID, err)
		return
	}
	h.reply(userID, res.Message)
}

func currencyKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(domain.SupportedCurrencies))
	for _, c := range domain.SupportedCurrencies {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c, prefix+c))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row, cancelRow)
}

func (h *Handler) fatal(userID int64, err error) {
	log.Printf("user %d: %v", userID, err)
	h.sessions.drop(userID)
	h.reply(userID, "Произошла внутренняя ошибка. Попробуйте позже.")
}
