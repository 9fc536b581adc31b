package debt

import (
	"context"
	"fmt"
	"log"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// ResolveApproval — ответ контрагента на предложенный долг
// (pending_approval). Принятие активирует обе стороны, отклонение
// удаляет обе без записи в историю: не активировавшийся долг историей
// не считается.
func (e *Engine) ResolveApproval(ctx context.Context, userID int64, linkedID string, accept bool) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	debt, listType, found := cur.FindByLink(linkedID, domain.StatusPendingApproval)
	if !found || debt.PartyUserID == 0 {
		// Обычная гонка: уже обработан или отменён инициатором.
		return fail("Не удалось найти этот запрос на подтверждение долга. Возможно, он уже обработан или отменен."), nil
	}

	otherID := debt.PartyUserID
	other, err := e.store.Read(ctx, otherID)
	if err != nil {
		return Result{}, err
	}

	otherList := listType.Opposite()
	otherDebt := findInList(other.List(otherList), linkedID, domain.StatusPendingApproval)
	if otherDebt == nil {
		// Рассинхрон: зеркала нет. Снимаем осиротевшую запись у себя,
		// чтобы не держать полусвязанный долг.
		log.Printf("sync error: debt %s not found in %d's %s list during approval", linkedID, otherID, otherList)
		cur.SetList(listType, removeByLink(cur.List(listType), linkedID))
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}
		return fail("Ошибка синхронизации. Не удалось найти долг у другой стороны. Запрос отменен."), nil
	}

	curName := cur.DisplayName(userID)
	otherName := other.DisplayName(otherID)

	var finalMsg, notifText string
	var enabled bool

	if accept {
		debt.Status = domain.StatusActive
		otherDebt.Status = domain.StatusActive
		cur.KnownUsers[otherID] = otherName
		other.KnownUsers[userID] = curName

		direction := "Вам должен"
		if listType == domain.ListIOwe {
			direction = "Вы должны"
		}
		finalMsg = fmt.Sprintf("Вы приняли долг: %s %s %s.", direction, otherName, fmtAmount(debt.Amount, debt.Currency))
		notifText = fmt.Sprintf("%s принял(а) долг (%s). Теперь он активен.", curName, fmtAmount(debt.Amount, debt.Currency))
		enabled = other.Settings.Notifications.OnAccepted
	} else {
		cur.SetList(listType, removeByLink(cur.List(listType), linkedID))
		other.SetList(otherList, removeByLink(other.List(otherList), linkedID))

		finalMsg = fmt.Sprintf("Вы отклонили долг (%s) от %s.", fmtAmount(debt.Amount, debt.Currency), otherName)
		notifText = fmt.Sprintf("%s отклонил(а) предложенный долг (%s).", curName, fmtAmount(debt.Amount, debt.Currency))
		enabled = other.Settings.Notifications.OnRejected
	}

	// Отвечающая сторона пишется первой: её решение уже долговечно,
	// даже если запись инициатора не удастся.
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

// CancelPending — инициатор отзывает ещё не принятый долг
// (pending_approval или pending_confirmation).
func (e *Engine) CancelPending(ctx context.Context, userID int64, debtID string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	debt, listType, found := cur.FindByID(debtID)
	if !found || (debt.Status != domain.StatusPendingApproval && debt.Status != domain.StatusPendingConfirmation) {
		return fail("Ошибка: не найден ожидающий долг для отмены."), nil
	}

	msg := fmt.Sprintf("Ожидающий долг (%s, %s) отменен.", debt.PartyIdentifier, fmtAmount(debt.Amount, debt.Currency))

	// Для pending_approval зеркало уже существует — убираем его по
	// возможности до записи собственной стороны.
	if debt.Status == domain.StatusPendingApproval && debt.PartyUserID != 0 && debt.LinkedDebtID != "" {
		otherID := debt.PartyUserID
		other, err := e.store.Read(ctx, otherID)
		if err != nil {
			return Result{}, err
		}
		otherList := listType.Opposite()
		before := len(other.List(otherList))
		other.SetList(otherList, removeByLink(other.List(otherList), debt.LinkedDebtID))

		if len(other.List(otherList)) < before {
			if err := e.store.Write(ctx, otherID, other); err != nil {
				return Result{}, err
			}
			notifText := fmt.Sprintf("%s отменил(а) предложенный ранее долг (%s).",
				cur.DisplayName(userID), fmtAmount(debt.Amount, debt.Currency))
			if e.send(ctx, otherID, other.Settings.Notifications.OnRejected, notifText, nil) == sentFailed {
				msg += undeliveredCaveat
			}
		} else {
			log.Printf("could not find mirrored pending debt %s for user %d to cancel", debt.LinkedDebtID, otherID)
			msg += "\n<i>(Не удалось синхронизировать отмену с другой стороной)</i>"
		}
	}

	cur.SetList(listType, removeByID(cur.List(listType), debtID))
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	return succeed(msg), nil
}

// --- помощники поиска/удаления в списке ---

func findInList(list []*domain.Debt, linkedID string, status domain.Status) *domain.Debt {
	for _, d := range list {
		if d.LinkedDebtID == linkedID && (status == "" || d.Status == status) {
			return d
		}
	}
	return nil
}

func removeByLink(list []*domain.Debt, linkedID string) []*domain.Debt {
	out := list[:0]
	for _, d := range list {
		if d.LinkedDebtID != linkedID {
			out = append(out, d)
		}
	}
	return out
}

func removeByID(list []*domain.Debt, id string) []*domain.Debt {
	out := list[:0]
	for _, d := range list {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}
