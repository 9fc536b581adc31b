package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// PostgresStore хранит снимки в таблице records (user_id, snapshot jsonb).
// Контракт тот же, что у FileStore: чтение — весь снимок, запись —
// замена целиком.
type PostgresStore struct{ pool *pgxpool.Pool }

func NewPostgres(p *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: p} }

func (s *PostgresStore) Read(ctx context.Context, userID int64) (*domain.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT snapshot FROM records WHERE user_id=$1
	`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user %d: %w", userID, err)
	}

	snap := domain.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		log.Printf("corrupt snapshot for user %d: %v", userID, err)
		return domain.NewSnapshot(), nil
	}
	ensureShape(snap)
	return snap, nil
}

func (s *PostgresStore) Write(ctx context.Context, userID int64, snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	ensureShape(snap)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal user %d: %w", userID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO records(user_id, snapshot)
		VALUES($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET snapshot=EXCLUDED.snapshot, updated_at=now()
	`, userID, data)
	if err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) FindUserByUsername(ctx context.Context, requestingUserID int64, username string) (int64, bool, error) {
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

	var id int64
	err = s.pool.QueryRow(ctx, `
		SELECT user_id FROM records
		WHERE lower(ltrim(snapshot->'settings'->>'username', '@')) = $1
		  AND user_id <> $2
		LIMIT 1
	`, needle, requestingUserID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find user by username: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) AllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM records ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
