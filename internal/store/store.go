package store

import (
	"context"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// Store — хранилище записей «снимок целиком»: Read возвращает полный
// снимок (для нового пользователя — пустой по умолчанию, не ошибку),
// Write заменяет его целиком. Транзакций между записями двух
// пользователей нет; движок синхронизации это учитывает.
type Store interface {
	Read(ctx context.Context, userID int64) (*domain.Snapshot, error)
	Write(ctx context.Context, userID int64, snap *domain.Snapshot) error

	// FindUserByUsername ищет пользователя по @username: сначала в
	// knownUsers запрашивающего, затем полным сканом всех записей.
	// ok=false — не найден (не ошибка).
	FindUserByUsername(ctx context.Context, requestingUserID int64, username string) (id int64, ok bool, err error)

	// AllUserIDs — все известные пользователи (для напоминаний и /linkme).
	AllUserIDs(ctx context.Context) ([]int64, error)
}

// normalizeUsername сравнивает @handle и handle как одно и то же имя.
func normalizeUsername(s string) string {
	if len(s) > 0 && s[0] == '@' {
		s = s[1:]
	}
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
