package debt

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/notify"
)

// canonicalFieldValue валидирует новое значение и приводит его к
// каноническому строковому виду, пригодному для структурного сравнения
// полезных нагрузок pendingEdit.
func canonicalFieldValue(field, raw string) (string, Result, bool) {
	raw = strings.TrimSpace(raw)
	switch field {
	case domain.FieldAmount:
		a, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
		if err != nil {
			return "", fail("Ошибка: неверный формат суммы."), false
		}
		a = domain.RoundAmount(a)
		if !a.IsPositive() {
			return "", fail("Ошибка: сумма должна быть больше нуля."), false
		}
		return a.StringFixed(2), Result{}, true
	case domain.FieldCurrency:
		c := strings.ToUpper(raw)
		if !domain.IsSupportedCurrency(c) {
			return "", fail(fmt.Sprintf("Ошибка: валюта %s не поддерживается.", c)), false
		}
		return c, Result{}, true
	case domain.FieldDueDate:
		if raw == "" {
			return "", Result{}, true
		}
		if _, ok := domain.ParseDueDate(raw); !ok {
			return "", fail("Ошибка: неверный формат даты. Используйте ДД-ММ-ГГГГ."), false
		}
		return raw, Result{}, true
	case domain.FieldPartyIdentifier:
		if raw == "" {
			return "", fail("Ошибка: контакт не может быть пустым."), false
		}
		return raw, Result{}, true
	default:
		return "", fail("Ошибка: это поле нельзя изменить."), false
	}
}

func fieldValue(d *domain.Debt, field string) string {
	switch field {
	case domain.FieldAmount:
		return d.Amount.StringFixed(2)
	case domain.FieldCurrency:
		return d.Currency
	case domain.FieldDueDate:
		return d.DueDate
	case domain.FieldPartyIdentifier:
		return d.PartyIdentifier
	}
	return ""
}

func applyFieldValue(d *domain.Debt, field, value string) {
	switch field {
	case domain.FieldAmount:
		a, err := decimal.NewFromString(value)
		if err == nil {
			d.Amount = domain.RoundAmount(a)
		}
	case domain.FieldCurrency:
		d.Currency = value
	case domain.FieldDueDate:
		d.DueDate = value
	case domain.FieldPartyIdentifier:
		d.PartyIdentifier = value
	}
}

// Edit меняет поле долга. Ручной долг меняется сразу; связанный —
// через запрос подтверждения, значения не трогаются до согласия
// контрагента.
func (e *Engine) Edit(ctx context.Context, userID int64, debtID, field, newValueRaw string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByID(debtID)
	if !found {
		return fail("Ошибка: долг не найден."), nil
	}
	if debt.Status != domain.StatusActive && debt.Status != domain.StatusManual {
		return fail("Ошибка: этот долг сейчас нельзя редактировать."), nil
	}
	if field == domain.FieldPartyIdentifier && debt.Status != domain.StatusManual {
		return fail("Ошибка: контакт связанного долга изменить нельзя."), nil
	}

	newValue, res, ok := canonicalFieldValue(field, newValueRaw)
	if !ok {
		return res, nil
	}
	oldValue := fieldValue(debt, field)
	if newValue == oldValue {
		return fail("Новое значение совпадает с текущим."), nil
	}

	// --- Ручной долг: применяем сразу ---
	if debt.Status == domain.StatusManual || !debt.Linked() {
		applyFieldValue(debt, field, newValue)
		cur.AddHistory(domain.HistoryEntry{
			DebtID:          debt.ID,
			PartyIdentifier: debt.PartyIdentifier,
			Amount:          debt.Amount,
			Currency:        debt.Currency,
			DueDate:         debt.DueDate,
			Type:            listType,
			Action:          domain.ActionEdited,
			ResolvedDate:    e.now(),
			EditedField:     field,
			OriginalValue:   oldValue,
			NewValue:        newValue,
		})
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return succeed(fmt.Sprintf("Изменено: %s: %s → %s.", fieldTitle(field),
			fmtFieldValue(field, oldValue, debt.Currency), fmtFieldValue(field, newValue, debt.Currency))), nil
	}

	// --- Связанный долг: запрос подтверждения ---
	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), debt.LinkedDebtID, "")
	if otherDebt == nil || otherDebt.Status != domain.StatusActive {
		log.Printf("sync error: mirrored debt for link %s not active at user %d during edit", debt.LinkedDebtID, otherID)
		return fail("Ошибка синхронизации: связанный долг у другой стороны не активен. Изменение невозможно."), nil
	}

	pending := &domain.PendingEdit{Field: field, NewValue: newValue, RequestedBy: userID}
	debt.PendingEdit = pending
	debt.Status = domain.StatusPendingEdit
	pendingCopy := *pending
	otherDebt.PendingEdit = &pendingCopy
	otherDebt.Status = domain.StatusPendingEdit

	// Запрос: сторона контрагента пишется первой.
	if err := e.store.Write(ctx, otherID, other); err != nil {
		return Result{}, err
	}
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}

	curName := cur.DisplayName(userID)
	notifText := fmt.Sprintf("%s предлагает изменить долг (%s):\n%s: %s → %s\nПодтвердить?",
		curName, fmtAmount(otherDebt.Amount, otherDebt.Currency), fieldTitle(field),
		fmtFieldValue(field, oldValue, otherDebt.Currency), fmtFieldValue(field, newValue, otherDebt.Currency))
	controls := notify.Row(
		notify.Button{Text: "✅ Подтвердить", Data: Token(VerbAcceptEdit, debt.LinkedDebtID)},
		notify.Button{Text: "❌ Отклонить", Data: Token(VerbRejectEdit, debt.LinkedDebtID)},
	)

	msg := fmt.Sprintf("Запрос на изменение (%s: %s → %s) отправлен другой стороне. Ожидайте подтверждения.",
		fieldTitle(field), fmtFieldValue(field, oldValue, debt.Currency), fmtFieldValue(field, newValue, debt.Currency))
	if e.send(ctx, otherID, other.Settings.Notifications.OnEditRequest, notifText, controls) == sentFailed {
		msg += "\n(Не удалось отправить уведомление другому пользователю)"
	}
	return succeed(msg), nil
}

// ResolveEdit — ответ контрагента на запрос изменения (в том числе
// частичного погашения). Подтверждение применяет каноническое значение
// на обеих сторонах; история пишется только инициатору запроса.
func (e *Engine) ResolveEdit(ctx context.Context, userID int64, linkedID string, confirm bool) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByLink(linkedID, domain.StatusPendingEdit)
	if !found || debt.PendingEdit == nil || debt.PartyUserID == 0 {
		return fail("Не удалось найти этот запрос на изменение. Возможно, он уже обработан."), nil
	}

	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), linkedID, domain.StatusPendingEdit)
	if otherDebt == nil {
		// Зеркала нет: локальную запись чиним, контрагента не трогаем.
		log.Printf("sync error: mirrored pending edit for link %s not found at user %d", linkedID, otherID)
		debt.Status = domain.StatusActive
		debt.PendingEdit = nil
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return fail("Ошибка синхронизации: запрос на изменение не найден у другой стороны. Долг снова активен."), nil
	}
	if !debt.PendingEdit.Equal(otherDebt.PendingEdit) {
		// Полезные нагрузки разошлись: применять нечего, обе стороны
		// возвращаются в active.
		log.Printf("sync error: pending edit payloads differ for link %s", linkedID)
		debt.Status = domain.StatusActive
		debt.PendingEdit = nil
		otherDebt.Status = domain.StatusActive
		otherDebt.PendingEdit = nil
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		if err := e.store.Write(ctx, otherID, other); err != nil {
			return Result{}, err
		}
		return fail("Ошибка синхронизации: данные запроса не совпадают. Изменение отменено, долг снова активен."), nil
	}

	pending := *debt.PendingEdit
	curName := cur.DisplayName(userID)
	partialRepay := pending.RepayAmount.IsPositive()

	var finalMsg, notifText string
	var enabled bool

	if confirm {
		oldValue := fieldValue(debt, pending.Field)
		applyFieldValue(debt, pending.Field, pending.NewValue)
		applyFieldValue(otherDebt, pending.Field, pending.NewValue)
		debt.Status = domain.StatusActive
		debt.PendingEdit = nil
		otherDebt.Status = domain.StatusActive
		otherDebt.PendingEdit = nil

		// История — только инициатору: подтверждающая сторона ничего
		// не запрашивала.
		requesterSnap, requesterDebt, requesterList := other, otherDebt, otherList
		if pending.RequestedBy == userID {
			requesterSnap, requesterDebt, requesterList = cur, debt, listType
		}
		entry := domain.HistoryEntry{
			DebtID:          requesterDebt.ID,
			LinkedDebtID:    requesterDebt.LinkedDebtID,
			PartyIdentifier: requesterDebt.PartyIdentifier,
			PartyUserID:     requesterDebt.PartyUserID,
			Amount:          requesterDebt.Amount,
			Currency:        requesterDebt.Currency,
			DueDate:         requesterDebt.DueDate,
			Type:            requesterList,
			ResolvedDate:    e.now(),
		}
		if partialRepay {
			entry.Action = domain.ActionPartialRepaid
			entry.RepaidAmount = pending.RepayAmount
			entry.RemainingAmount = requesterDebt.Amount
		} else {
			entry.Action = domain.ActionEdited
			entry.EditedField = pending.Field
			entry.OriginalValue = oldValue
			entry.NewValue = pending.NewValue
		}
		requesterSnap.AddHistory(entry)

		if partialRepay {
			finalMsg = fmt.Sprintf("Вы подтвердили частичное погашение (%s). Остаток: %s.",
				fmtAmount(pending.RepayAmount, debt.Currency), fmtAmount(debt.Amount, debt.Currency))
			notifText = fmt.Sprintf("%s подтвердил(а) частичное погашение (%s). Остаток долга: %s.",
				curName, fmtAmount(pending.RepayAmount, otherDebt.Currency), fmtAmount(otherDebt.Amount, otherDebt.Currency))
		} else {
			finalMsg = fmt.Sprintf("Вы подтвердили изменение: %s: %s → %s.", fieldTitle(pending.Field),
				fmtFieldValue(pending.Field, oldValue, debt.Currency), fmtFieldValue(pending.Field, pending.NewValue, debt.Currency))
			notifText = fmt.Sprintf("%s подтвердил(а) изменение долга: %s: %s.", curName,
				fieldTitle(pending.Field), fmtFieldValue(pending.Field, pending.NewValue, otherDebt.Currency))
		}
		enabled = other.Settings.Notifications.OnEditConfirm
	} else {
		debt.Status = domain.StatusActive
		debt.PendingEdit = nil
		otherDebt.Status = domain.StatusActive
		otherDebt.PendingEdit = nil

		if partialRepay {
			finalMsg = fmt.Sprintf("Вы отклонили частичное погашение (%s). Долг не изменен.",
				fmtAmount(pending.RepayAmount, debt.Currency))
			notifText = fmt.Sprintf("%s отклонил(а) частичное погашение (%s). Долг не изменен.",
				curName, fmtAmount(pending.RepayAmount, otherDebt.Currency))
		} else {
			finalMsg = fmt.Sprintf("Вы отклонили изменение (%s). Долг не изменен.", fieldTitle(pending.Field))
			notifText = fmt.Sprintf("%s отклонил(а) изменение долга (%s). Долг не изменен.", curName, fieldTitle(pending.Field))
		}
		enabled = other.Settings.Notifications.OnEditReject
	}

	// Ответ: отвечающая сторона пишется первой.
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	if err := e.store.Write(ctx, otherID, other); err != nil {
		return Result{}, err
	}

	if e.send(ctx, otherID, enabled, notifText, nil) == sentFailed {
		finalMsg += undeliveredCaveat
	}
	return succeed(finalMsg), nil
}
