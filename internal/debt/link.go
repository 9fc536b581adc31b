package debt

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// LinkOnContact вызывается при каждом сообщении пользователя: обновляет
// сохранённый @username и активирует долги, которые другие пользователи
// завели на это имя до его первого контакта с ботом.
func (e *Engine) LinkOnContact(ctx context.Context, userID int64, username string) error {
	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return err
	}
	handle := ""
	if username != "" {
		handle = "@" + strings.TrimPrefix(username, "@")
	}
	if cur.Settings.Username != handle {
		cur.Settings.Username = handle
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return err
		}
	}
	if handle == "" {
		return nil
	}
	_, err = e.linkByIdentifier(ctx, userID, cur, handle)
	return err
}

// LinkByOldUsername — команда /linkme: пользователь сообщает, под каким
// именем его могли записать раньше. Возвращает число связанных долгов.
func (e *Engine) LinkByOldUsername(ctx context.Context, userID int64, oldUsername string) (int, Result, error) {
	old := strings.TrimSpace(oldUsername)
	if !strings.HasPrefix(old, "@") {
		old = "@" + old
	}
	if !domain.IsUsername(old) {
		return 0, fail("Ошибка: укажите корректный @username, например /linkme @ivan_petrov."), nil
	}

	cur, err := e.store.Read(ctx, userID)
	if err != nil {
		return 0, Result{}, err
	}
	n, err := e.linkByIdentifier(ctx, userID, cur, old)
	if err != nil {
		return 0, Result{}, err
	}
	if n == 0 {
		return 0, succeed(fmt.Sprintf("Долгов, записанных на %s, не найдено.", old)), nil
	}
	return n, succeed(fmt.Sprintf("Связано долгов: %d. Они добавлены в ваши списки.", n)), nil
}

// linkByIdentifier сканирует записи всех пользователей: каждый их долг
// в pending_confirmation с совпадающим идентификатором активируется, а
// у вызывающего создаётся зеркальная запись. Уведомление о связывании
// не проходит через настройки: владелец ждал эту связь с момента
// добавления долга.
func (e *Engine) linkByIdentifier(ctx context.Context, userID int64, cur *domain.Snapshot, identifier string) (int, error) {
	ids, err := e.store.AllUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	norm := strings.ToLower(strings.TrimPrefix(identifier, "@"))
	curName := cur.DisplayName(userID)
	linked := 0
	curDirty := false

	for _, ownerID := range ids {
		if ownerID == userID {
			continue
		}
		owner, err := e.store.Read(ctx, ownerID)
		if err != nil {
			log.Printf("link scan: read user %d: %v", ownerID, err)
			continue
		}

		ownerDirty := false
		for _, t := range []domain.ListType{domain.ListIOwe, domain.ListOweMe} {
			for _, d := range owner.List(t) {
				if d.Status != domain.StatusPendingConfirmation || d.LinkedDebtID == "" {
					continue
				}
				if strings.ToLower(strings.TrimPrefix(d.PartyIdentifier, "@")) != norm {
					continue
				}

				d.Status = domain.StatusActive
				d.PartyUserID = userID
				d.PartyIdentifier = curName
				owner.KnownUsers[userID] = curName
				cur.KnownUsers[ownerID] = owner.DisplayName(ownerID)

				mirrorList := t.Opposite()
				mirror := findInList(cur.List(mirrorList), d.LinkedDebtID, "")
				if mirror == nil {
					mirror = &domain.Debt{
						ID:           uuid.NewString(),
						Amount:       d.Amount,
						Currency:     d.Currency,
						DueDate:      d.DueDate,
						LinkedDebtID: d.LinkedDebtID,
						CreatedDate:  d.CreatedDate,
					}
					cur.Append(mirrorList, mirror)
				}
				mirror.Status = domain.StatusActive
				mirror.PartyUserID = ownerID
				mirror.PartyIdentifier = owner.DisplayName(ownerID)

				ownerDirty = true
				curDirty = true
				linked++
			}
		}

		if !ownerDirty {
			continue
		}
		if err := e.store.Write(ctx, ownerID, owner); err != nil {
			return linked, err
		}
		notifText := fmt.Sprintf("%s теперь в боте: ваши долги, записанные на %s, связаны и активны.", curName, identifier)
		e.send(ctx, ownerID, true, notifText, nil)
	}

	if curDirty {
		if err := e.store.Write(ctx, userID, cur); err != nil {
			return linked, err
		}
	}
	return linked, nil
}
