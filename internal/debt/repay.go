package debt

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/notify"
)

// mirrorMismatch — допуск расхождения сумм зеркальных записей, сверх
// которого полное погашение не трогает чужую сторону.
var mirrorMismatch = decimal.RequireFromString("0.01")

// Repay гасит долг на указанную сумму.
//
// Полное погашение применяется сразу на обеих сторонах; частичное
// погашение связанного долга не применяется односторонне, а проходит
// через протокол подтверждения изменения (pending_edit_approval).
// Асимметрия намеренная: обнуление однозначно, частичная корректировка —
// нет.
func (e *Engine) Repay(ctx context.Context, userID int64, debtID string, repayAmount decimal.Decimal) (Result, error) {
	repayAmount = domain.RoundAmount(repayAmount)
	if !repayAmount.IsPositive() {
		return fail("Ошибка: сумма погашения должна быть больше нуля."), nil
	}

	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByID(debtID)
	if !found {
		return fail("Ошибка: долг не найден. Возможно, он был изменен."), nil
	}
	if debt.Status != domain.StatusActive && debt.Status != domain.StatusManual {
		return fail("Ошибка: этот долг не активен и не может быть погашен."), nil
	}
	if repayAmount.GreaterThan(debt.Amount.Add(domain.AmountTolerance)) {
		return fail(fmt.Sprintf("Ошибка: сумма погашения (%s) больше остатка (%s).",
			repayAmount.StringFixed(2), debt.Amount.StringFixed(2))), nil
	}

	remainingBefore := debt.Amount
	remainingAfter := domain.RoundAmount(remainingBefore.Sub(repayAmount))
	fullRepayment := remainingAfter.LessThanOrEqual(domain.AmountTolerance)
	partyName := cur.PartyName(debt)
	curName := cur.DisplayName(userID)

	if fullRepayment {
		return e.repayFull(ctx, userID, cur, debt, listType, remainingBefore, partyName, curName)
	}
	if debt.Status == domain.StatusActive && debt.Linked() {
		return e.repayPartialLinked(ctx, userID, cur, debt, listType, repayAmount, remainingAfter, partyName, curName)
	}
	return e.repayPartialManual(ctx, userID, cur, debt, listType, repayAmount, remainingAfter, partyName)
}

func (e *Engine) repayFull(ctx context.Context, userID int64, cur *domain.Snapshot, debt *domain.Debt, listType domain.ListType, remainingBefore decimal.Decimal, partyName, curName string) (Result, error) {
	finalMsg := fmt.Sprintf("Долг (%s, %s) полностью погашен.", partyName, fmtAmount(remainingBefore, debt.Currency))

	var other *domain.Snapshot
	var otherID int64
	var otherPartyMsg string
	notifyOther := false

	// Синхронизация с зеркалом, если долг связан.
	if debt.Status == domain.StatusActive && debt.Linked() {
		otherID = debt.PartyUserID
		var err error
		other, err = e.store.Read(ctx, otherID)
		if err != nil {
			return Result{}, err
		}
		otherList := listType.Opposite()
		otherDebt := findInList(other.List(otherList), debt.LinkedDebtID, "")

		switch {
		case otherDebt == nil:
			log.Printf("could not find mirrored debt for link %s in user %d", debt.LinkedDebtID, otherID)
			finalMsg += "\n<i>Не удалось синхронизировать погашение (ошибка связи).</i>"
			other = nil
		case otherDebt.Amount.Sub(remainingBefore).Abs().GreaterThan(mirrorMismatch):
			// Суммы разошлись: зеркало не трогаем, не угадываем.
			log.Printf("repay inconsistency: link %s local %s remote %s", debt.LinkedDebtID,
				remainingBefore.StringFixed(2), otherDebt.Amount.StringFixed(2))
			finalMsg += "\n<i>Возникла ошибка синхронизации при удалении долга у другой стороны. Проверьте долги.</i>"
			otherPartyMsg = fmt.Sprintf("Возникла ошибка синхронизации при погашении долга с %s. Пожалуйста, проверьте ваши долги.", curName)
			notifyOther = true
		default:
			removed := other.RemoveByLink(otherList, debt.LinkedDebtID)
			other.AddHistory(domain.HistoryEntry{
				DebtID:          removed.ID,
				LinkedDebtID:    removed.LinkedDebtID,
				PartyIdentifier: removed.PartyIdentifier,
				PartyUserID:     removed.PartyUserID,
				Amount:          remainingBefore,
				Currency:        removed.Currency,
				DueDate:         removed.DueDate,
				Type:            otherList,
				Action:          domain.ActionRepaid,
				ResolvedDate:    e.now(),
			})
			otherPartyMsg = fmt.Sprintf("Долг с %s (%s) был полностью погашен.", curName, fmtAmount(remainingBefore, removed.Currency))
			notifyOther = true
		}
	}

	cur.RemoveByID(listType, debt.ID)
	cur.AddHistory(domain.HistoryEntry{
		DebtID:          debt.ID,
		LinkedDebtID:    debt.LinkedDebtID,
		PartyIdentifier: debt.PartyIdentifier,
		PartyUserID:     debt.PartyUserID,
		Amount:          remainingBefore,
		Currency:        debt.Currency,
		DueDate:         debt.DueDate,
		Type:            listType,
		Action:          domain.ActionRepaid,
		ResolvedDate:    e.now(),
	})

	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	if other != nil {
		if err := e.store.Write(ctx, debt.PartyUserID, other); err != nil {
			return Result{}, err
		}
	}

	if notifyOther && other != nil {
		if e.send(ctx, otherID, other.Settings.Notifications.OnRepaid, otherPartyMsg, nil) == sentFailed {
			finalMsg += undeliveredCaveat
		}
	}
	return succeed(finalMsg), nil
}

// repayPartialLinked не уменьшает сумму: обе стороны переводятся в
// pending_edit_approval с запрошенным остатком, применение — только
// после подтверждения контрагентом.
func (e *Engine) repayPartialLinked(ctx context.Context, userID int64, cur *domain.Snapshot, debt *domain.Debt, listType domain.ListType, repayAmount, remainingAfter decimal.Decimal, partyName, curName string) (Result, error) {
	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), debt.LinkedDebtID, "")
	if otherDebt == nil {
		log.Printf("could not find mirrored debt for link %s in user %d during partial repay", debt.LinkedDebtID, otherID)
		return fail("Ошибка синхронизации: не найден связанный долг у другой стороны."), nil
	}
	if otherDebt.Status != domain.StatusActive {
		return fail(fmt.Sprintf("Ошибка: статус долга у другой стороны (%s) не позволяет частичное погашение.", otherDebt.Status)), nil
	}

	pending := &domain.PendingEdit{
		Field:       domain.FieldAmount,
		NewValue:    remainingAfter.StringFixed(2),
		RequestedBy: userID,
		RepayAmount: repayAmount,
	}
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

	who := partyName + " → " + curName
	if listType == domain.ListIOwe {
		who = curName + " → " + partyName
	}
	dueText := ""
	if debt.DueDate != "" {
		dueText = " до " + fmtDate(debt.DueDate)
	}
	notifText := fmt.Sprintf("Запрос на частичное погашение долга:\n%s\nСумма к погашению: %s\nОстаток: %s%s\nПодтвердить изменение?",
		who, fmtAmount(repayAmount, debt.Currency), fmtAmount(remainingAfter, debt.Currency), dueText)
	controls := notify.Row(
		notify.Button{Text: "✅ Подтвердить", Data: Token(VerbAcceptEdit, debt.LinkedDebtID)},
		notify.Button{Text: "❌ Отклонить", Data: Token(VerbRejectEdit, debt.LinkedDebtID)},
	)

	msg := "Запрос на частичное погашение отправлен другой стороне. Ожидайте подтверждения."
	if e.send(ctx, otherID, other.Settings.Notifications.OnEditRequest, notifText, controls) == sentFailed {
		msg += "\n(Не удалось отправить уведомление другому пользователю)"
	}
	return succeed(msg), nil
}

// repayPartialManual — данные одного владельца, подтверждение не нужно.
func (e *Engine) repayPartialManual(ctx context.Context, userID int64, cur *domain.Snapshot, debt *domain.Debt, listType domain.ListType, repayAmount, remainingAfter decimal.Decimal, partyName string) (Result, error) {
	debt.Amount = remainingAfter
	cur.AddHistory(domain.HistoryEntry{
		DebtID:          debt.ID,
		LinkedDebtID:    debt.LinkedDebtID,
		PartyIdentifier: debt.PartyIdentifier,
		PartyUserID:     debt.PartyUserID,
		Amount:          remainingAfter,
		Currency:        debt.Currency,
		DueDate:         debt.DueDate,
		Type:            listType,
		Action:          domain.ActionPartialRepaid,
		ResolvedDate:    e.now(),
		RepaidAmount:    repayAmount,
		RemainingAmount: remainingAfter,
	})
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	return succeed(fmt.Sprintf("Погашено %s. Остаток долга (%s): %s.",
		fmtAmount(repayAmount, debt.Currency), partyName, fmtAmount(remainingAfter, debt.Currency))), nil
}
