package debt

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/notify"
)

type AddInput struct {
	Type            domain.ListType
	PartyIdentifier string
	// PartyUserID заполняется, если контрагент уже выбран из известных
	// контактов; 0 — движок попробует найти его по @username сам.
	PartyUserID int64
	Amount      decimal.Decimal
	Currency    string
	DueDate     string // DD-MM-YYYY или пусто
}

// Add создаёт долг. Исходы: связанный (контрагент найден — зеркальная
// пара pending_approval), ожидающий связи (идентификатор похож на
// @username, но пользователь не найден) или ручной.
func (e *Engine) Add(ctx context.Context, userID int64, in AddInput) (Result, error) {
	if in.Type != domain.ListIOwe && in.Type != domain.ListOweMe {
		return fail("Ошибка: неизвестный тип долга."), nil
	}
	amount := domain.RoundAmount(in.Amount)
	if !amount.IsPositive() {
		return fail("Ошибка: сумма должна быть больше нуля."), nil
	}
	if !domain.IsSupportedCurrency(in.Currency) {
		return fail(fmt.Sprintf("Ошибка: валюта %s не поддерживается.", in.Currency)), nil
	}
	if in.DueDate != "" {
		if _, ok := domain.ParseDueDate(in.DueDate); !ok {
			return fail("Ошибка: неверный формат даты. Используйте ДД-ММ-ГГГГ."), nil
		}
	}
	party := strings.TrimSpace(in.PartyIdentifier)
	if party == "" {
		return fail("Ошибка: не указан контакт."), nil
	}

	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	newDebt := &domain.Debt{
		ID:              uuid.NewString(),
		Amount:          amount,
		Currency:        in.Currency,
		DueDate:         in.DueDate,
		PartyIdentifier: party,
		Status:          domain.StatusManual,
		CreatedDate:     e.now(),
	}

	targetID := in.PartyUserID
	if targetID == 0 && domain.IsUsername(party) {
		id, ok, err := e.store.FindUserByUsername(ctx, userID, party)
		if err != nil {
			return Result{}, err
		}
		if ok {
			targetID = id
		}
	}

	// --- Связанный долг: зеркальная пара, обе стороны pending_approval ---
	if targetID != 0 && targetID != userID {
		target, err := e.store.Read(ctx, targetID)
		if err != nil {
			return Result{}, err
		}

		linkedID := uuid.NewString()
		newDebt.Status = domain.StatusPendingApproval
		newDebt.PartyUserID = targetID
		newDebt.LinkedDebtID = linkedID

		curName := cur.DisplayName(userID)
		targetName := target.Settings.Username
		if targetName == "" {
			targetName = party
		}
		cur.KnownUsers[targetID] = targetName
		target.KnownUsers[userID] = curName

		mirrored := *newDebt
		mirrored.ID = uuid.NewString()
		mirrored.PartyUserID = userID
		mirrored.PartyIdentifier = curName
		target.Append(in.Type.Opposite(), &mirrored)

		cur.Append(in.Type, newDebt)

		// Запись контрагента становится долговечной раньше записи
		// инициатора: окно, где изменение видно только у одной стороны,
		// закрывает следующая операция по этой связи.
		if err := e.store.Write(ctx, targetID, target); err != nil {
			return Result{}, err
		}
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}

		direction := "Вам должен"
		notifDirection := "вы должны ему"
		if in.Type == domain.ListIOwe {
			direction = "Вы должны"
			notifDirection = "вам должен"
		}
		msg := fmt.Sprintf("Долг добавлен: %s %s %s.\nОжидает подтверждения от %s.",
			direction, targetName, fmtAmount(amount, in.Currency), targetName)

		notifText := fmt.Sprintf("%s добавил(а) долг: %s %s. Подтвердите или отклоните:",
			curName, notifDirection, fmtAmount(amount, in.Currency))
		controls := notify.Row(
			notify.Button{Text: "✅ Принять", Data: Token(VerbAccept, linkedID)},
			notify.Button{Text: "❌ Отклонить", Data: Token(VerbReject, linkedID)},
		)
		if e.send(ctx, targetID, target.Settings.Notifications.OnNewPending, notifText, controls) == sentFailed {
			msg += "\n(Не удалось отправить уведомление другому пользователю)"
		}
		return succeed(msg), nil
	}

	// --- Ожидает связи: @username указан, но пользователь ещё не в боте ---
	if domain.IsUsername(party) {
		newDebt.Status = domain.StatusPendingConfirmation
		// Идентификатор связи резервируется сейчас и переживёт линковку.
		newDebt.LinkedDebtID = uuid.NewString()
		cur.Append(in.Type, newDebt)
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return Result{}, err
		}

		direction := "должен вам"
		if in.Type == domain.ListIOwe {
			direction = "вам должен"
		}
		msg := fmt.Sprintf("Долг добавлен: %s %s %s.\nСтатус: ожидает первого контакта %s с ботом для связи.",
			party, direction, fmtAmount(amount, in.Currency), party)
		msg += fmt.Sprintf("\nЕсли %s уже пользуется ботом под другим именем, он(а) может использовать /linkme %s.", party, party)
		return succeed(msg), nil
	}

	// --- Ручной долг ---
	cur.Append(in.Type, newDebt)
	if err := e.store.Write(ctx, userID, cur); err != nil {
		return Result{}, err
	}

	direction := "Мне должны"
	if in.Type == domain.ListIOwe {
		direction = "Я должен"
	}
	return succeed(fmt.Sprintf("Добавлен не связанный (ручной) долг (%s %s): %s.",
		direction, party, fmtAmount(amount, in.Currency))), nil
}
