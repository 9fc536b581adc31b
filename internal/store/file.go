package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// FileStore хранит запись каждого пользователя в data/user_<id>.json.
type FileStore struct {
	dir string
}

func NewFile(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d.json", userID))
}

func (s *FileStore) Read(_ context.Context, userID int64) (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("read user %d: %w", userID, err)
	}

	// Распаковка поверх снимка по умолчанию: отсутствующие в файле
	// ключи (в т.ч. новые настройки) получают значения по умолчанию,
	// повторное слияние ничего не меняет.
	snap := domain.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		log.Printf("corrupt data file for user %d: %v", userID, err)
		return domain.NewSnapshot(), nil
	}
	ensureShape(snap)
	return snap, nil
}

func (s *FileStore) Write(_ context.Context, userID int64, snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	ensureShape(snap)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user %d: %w", userID, err)
	}
	if err := os.WriteFile(s.path(userID), data, 0o644); err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	return nil
}

func (s *FileStore) FindUserByUsername(ctx context.Context, requestingUserID int64, username string) (int64, bool, error) {
	needle := normalizeUsername(username)
	if needle == "" {
		return 0, false, nil
	}

	own, err := s.Read(ctx, requestingUserID)
	if err != nil {
		return 0, false, err
	}
	for id, known := range own.KnownUsers {
		if normalizeUsername(known) == needle {
			return id, true, nil
		}
	}

	// Медленный путь: скан всех записей по settings.username.
	ids, err := s.AllUserIDs(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, id := range ids {
		if id == requestingUserID {
			continue
		}
		snap, err := s.Read(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if normalizeUsername(snap.Settings.Username) == needle {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (s *FileStore) AllUserIDs(_ context.Context) ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "user_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "user_"), ".json")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ensureShape достраивает nil-коллекции после распаковки, чтобы
// вызывающим не приходилось проверять их на каждом шаге.
func ensureShape(snap *domain.Snapshot) {
	if snap.Debts.IOwe == nil {
		snap.Debts.IOwe = []*domain.Debt{}
	}
	if snap.Debts.OweMe == nil {
		snap.Debts.OweMe = []*domain.Debt{}
	}
	if snap.History == nil {
		snap.History = []domain.HistoryEntry{}
	}
	if snap.KnownUsers == nil {
		snap.KnownUsers = map[int64]string{}
	}
}
