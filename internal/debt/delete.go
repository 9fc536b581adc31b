package debt

import (
	"context"
	"fmt"
	"log"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/notify"
)

// DeleteManual удаляет не связанный долг. Связанные долги удаляются
// только через протокол подтверждения (RequestDeletion).
func (e *Engine) DeleteManual(ctx context.Context, userID int64, debtID string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByID(debtID)
	if !found {
		return fail("Ошибка: долг не найден."), nil
	}
	if debt.Status != domain.StatusManual && debt.Status != domain.StatusPendingConfirmation {
		return fail("Ошибка: связанный долг нельзя удалить в одностороннем порядке. Используйте запрос на удаление."), nil
	}

	cur.RemoveByID(listType, debtID)
	cur.AddHistory(domain.HistoryEntry{
		DebtID:          debt.ID,
		LinkedDebtID:    debt.LinkedDebtID,
		PartyIdentifier: debt.PartyIdentifier,
		PartyUserID:     debt.PartyUserID,
		Amount:          debt.Amount,
		Currency:        debt.Currency,
		DueDate:         debt.DueDate,
		Type:            listType,
		Action:          domain.ActionDeleted,
		ResolvedDate:    e.now(),
	})
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	return succeed(fmt.Sprintf("Долг (%s, %s) удален.", debt.PartyIdentifier, fmtAmount(debt.Amount, debt.Currency))), nil
}

// RequestDeletion переводит связанную пару в pending_deletion_approval.
// Незавершённый запрос изменения при этом снимается с обеих сторон:
// удаление перекрывает редактирование.
func (e *Engine) RequestDeletion(ctx context.Context, userID int64, debtID string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByID(debtID)
	if !found {
		return fail("Ошибка: долг не найден."), nil
	}
	if debt.Status != domain.StatusActive && debt.Status != domain.StatusPendingEdit {
		return fail("Ошибка: запрос на удаление возможен только для активного долга."), nil
	}
	if !debt.Linked() {
		return fail("Ошибка: этот долг не связан. Удалите его напрямую."), nil
	}

	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), debt.LinkedDebtID, "")
	if otherDebt == nil || (otherDebt.Status != domain.StatusActive && otherDebt.Status != domain.StatusPendingEdit) {
		log.Printf("sync error: mirrored debt for link %s unavailable for deletion request (user %d)", debt.LinkedDebtID, otherID)
		return fail("Ошибка синхронизации: не удалось найти активный связанный долг у другой стороны."), nil
	}

	debt.Status = domain.StatusPendingDeletion
	debt.PendingEdit = nil
	otherDebt.Status = domain.StatusPendingDeletion
	otherDebt.PendingEdit = nil

	// Запрос: сторона контрагента пишется первой.
	if err := e.store.Write(ctx, otherID, other); err != nil {
		return Result{}, err
	}
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}

	curName := cur.DisplayName(userID)
	notifText := fmt.Sprintf("%s запросил(а) удаление долга (%s). Подтвердите или отклоните:",
		curName, fmtAmount(otherDebt.Amount, otherDebt.Currency))
	controls := notify.Row(
		notify.Button{Text: "✅ Подтвердить удаление", Data: Token(VerbConfirmDelete, debt.LinkedDebtID)},
		notify.Button{Text: "❌ Отклонить", Data: Token(VerbRejectDelete, debt.LinkedDebtID)},
	)

	msg := fmt.Sprintf("Запрос на удаление долга (%s, %s) отправлен. Ожидайте подтверждения.",
		cur.PartyName(debt), fmtAmount(debt.Amount, debt.Currency))
	if e.send(ctx, otherID, other.Settings.Notifications.OnDeleteRequest, notifText, controls) == sentFailed {
		msg += "\n(Не удалось отправить уведомление другому пользователю)"
	}
	return succeed(msg), nil
}

// ResolveDeletion — ответ контрагента на запрос удаления.
// Подтверждение удаляет обе записи, и каждая сторона получает
// собственную запись истории; отклонение возвращает обе в active.
func (e *Engine) ResolveDeletion(ctx context.Context, userID int64, linkedID string, confirm bool) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByLink(linkedID, domain.StatusPendingDeletion)
	if !found {
		return fail("Не удалось найти этот запрос на удаление. Возможно, он уже обработан."), nil
	}
	if debt.PartyUserID == 0 {
		// Запись повреждена: без идентификатора второй стороны протокол
		// не продолжить, откатываем локально.
		log.Printf("data error: pending deletion debt %s has no party user id", debt.ID)
		debt.Status = domain.StatusActive
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return fail("Ошибка данных: у долга нет второй стороны. Статус возвращен в активный."), nil
	}

	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), linkedID, domain.StatusPendingDeletion)
	if otherDebt == nil {
		// Зеркало исчезло или сменило статус: локальную запись возвращаем
		// в active, контрагента не трогаем.
		log.Printf("sync error: mirrored debt for link %s not pending deletion at user %d", linkedID, otherID)
		debt.Status = domain.StatusActive
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return fail("Ошибка синхронизации: запрос на удаление не найден у другой стороны. Долг снова активен."), nil
	}

	curName := cur.DisplayName(userID)
	otherName := other.DisplayName(otherID)

	var finalMsg, notifText string
	var enabled bool

	if confirm {
		cur.RemoveByLink(listType, linkedID)
		cur.AddHistory(domain.HistoryEntry{
			DebtID:          debt.ID,
			LinkedDebtID:    debt.LinkedDebtID,
			PartyIdentifier: debt.PartyIdentifier,
			PartyUserID:     debt.PartyUserID,
			Amount:          debt.Amount,
			Currency:        debt.Currency,
			DueDate:         debt.DueDate,
			Type:            listType,
			Action:          domain.ActionDeleted,
			ResolvedDate:    e.now(),
		})
		other.RemoveByLink(otherList, linkedID)
		other.AddHistory(domain.HistoryEntry{
			DebtID:          otherDebt.ID,
			LinkedDebtID:    otherDebt.LinkedDebtID,
			PartyIdentifier: otherDebt.PartyIdentifier,
			PartyUserID:     otherDebt.PartyUserID,
			Amount:          otherDebt.Amount,
			Currency:        otherDebt.Currency,
			DueDate:         otherDebt.DueDate,
			Type:            otherList,
			Action:          domain.ActionDeleted,
			ResolvedDate:    e.now(),
		})

		finalMsg = fmt.Sprintf("Долг (%s, %s) удален по взаимному согласию.", otherName, fmtAmount(debt.Amount, debt.Currency))
		notifText = fmt.Sprintf("%s подтвердил(а) удаление долга (%s).", curName, fmtAmount(debt.Amount, debt.Currency))
		enabled = other.Settings.Notifications.OnDeleteConfirm
	} else {
		debt.Status = domain.StatusActive
		otherDebt.Status = domain.StatusActive

		finalMsg = fmt.Sprintf("Вы отклонили удаление. Долг (%s, %s) снова активен.", otherName, fmtAmount(debt.Amount, debt.Currency))
		notifText = fmt.Sprintf("%s отклонил(а) удаление долга (%s). Долг снова активен.", curName, fmtAmount(debt.Amount, debt.Currency))
		enabled = other.Settings.Notifications.OnDeleteReject
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

// CancelDeletionRequest — инициатор отзывает свой запрос удаления,
// обе стороны возвращаются в active.
func (e *Engine) CancelDeletionRequest(ctx context.Context, userID int64, debtID string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, listType, found := cur.FindByID(debtID)
	if !found || debt.Status != domain.StatusPendingDeletion {
		return fail("Ошибка: не найден запрос на удаление для отмены."), nil
	}
	if !debt.Linked() {
		log.Printf("data error: pending deletion debt %s is not linked", debt.ID)
		debt.Status = domain.StatusActive
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return fail("Ошибка данных: долг не связан. Статус возвращен в активный."), nil
	}

	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}
	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), debt.LinkedDebtID, domain.StatusPendingDeletion)
	if otherDebt == nil {
		log.Printf("sync error: mirrored pending deletion for link %s not found at user %d", debt.LinkedDebtID, otherID)
		return fail("Ошибка синхронизации: запрос на удаление не найден у другой стороны. Ничего не изменено."), nil
	}

	debt.Status = domain.StatusActive
	otherDebt.Status = domain.StatusActive

	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	if err := e.store.Write(ctx, otherID, other); err != nil {
		return Result{}, err
	}

	notifText := fmt.Sprintf("%s отменил(а) свой запрос на удаление долга (%s). Долг снова активен.",
		cur.DisplayName(userID), fmtAmount(debt.Amount, debt.Currency))
	msg := fmt.Sprintf("Запрос на удаление отменен. Долг (%s, %s) снова активен.",
		cur.PartyName(debt), fmtAmount(debt.Amount, debt.Currency))
	if e.send(ctx, otherID, other.Settings.Notifications.OnDeleteReject, notifText, nil) == sentFailed {
		msg += undeliveredCaveat
	}
	return succeed(msg), nil
}
