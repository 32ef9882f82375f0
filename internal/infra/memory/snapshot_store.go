package memory

import (
	"context"
	"sync"

	"promptquiz-service/internal/domain"
)

// SnapshotStore keeps the latest snapshot per room in process memory.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.Session
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]domain.Session)}
}

// SaveSnapshot ignores snapshots older than the one already stored.
func (s *SnapshotStore) SaveSnapshot(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.snapshots[session.RoomID]; ok && cur.Version >= session.Version {
		return nil
	}
	s.snapshots[session.RoomID] = session
	return nil
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context, roomID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.snapshots[roomID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}
