package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"promptquiz-service/internal/domain"
)

// SnapshotStore persists room snapshots in the rooms table. Writes carrying an
// older version than the stored row are ignored.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, host_id, status, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, version = EXCLUDED.version, data = EXCLUDED.data, updated_at = now()
		WHERE rooms.version < EXCLUDED.version`,
		session.RoomID, session.HostID, string(session.Status), session.Version, string(raw), session.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, roomID string) (domain.Session, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM rooms WHERE id=$1`, roomID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("load snapshot: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return session, nil
}
