package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"promptquiz-service/internal/domain"
)

// saveIfNewer writes the snapshot only when its version beats the stored one,
// so a late writer can never roll a room back.
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// SnapshotStore keeps the latest room snapshot in a Redis hash:
// HSET quiz:snapshot:{roomID} version {n} data {json}
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	keys := []string{s.key(session.RoomID)}
	if err := saveIfNewer.Run(ctx, s.client, keys, session.Version, raw, s.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, roomID string) (domain.Session, error) {
	raw, err := s.client.HGet(ctx, s.key(roomID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

func (s *SnapshotStore) key(roomID string) string {
	return "quiz:snapshot:" + roomID
}
