package debt

import (
	"context"
	"fmt"
	"time"
)

// Snooze откладывает напоминания по долгу до начала следующего дня.
func (e *Engine) Snooze(ctx context.Context, userID int64, debtID string) (Result, error) {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	debt, _, found := cur.FindByID(debtID)
	if !found {
		return fail("Ошибка: долг не найден."), nil
	}

	now := e.now()
	until := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	debt.SnoozedUntil = &until

	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}
	return succeed(fmt.Sprintf("Напоминание отложено до %s.", until.Format("02.01.2006"))), nil
}
