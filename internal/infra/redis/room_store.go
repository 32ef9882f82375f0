package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
)

const opTimeout = 2 * time.Second

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Rooms run in process; the local map holds the live state machines.
//   - Redis claims each roomId with SET NX so ids stay unique across instances,
//     and the claim doubles as a liveness marker that lapses with the TTL.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) Create(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID()]; ok {
		return domain.ErrRoomExists
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	claimed, err := s.client.SetNX(ctx, s.key(room.ID()), room.HostID(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim room id: %w", err)
	}
	if !claimed {
		return domain.ErrRoomExists
	}
	s.rooms[room.ID()] = room
	return nil
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) DeleteIfIdle(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.Idle() {
		return false
	}
	delete(s.rooms, roomID)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	// best-effort: the marker also lapses on its own
	if err := s.client.Del(ctx, s.key(roomID)).Err(); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("release room marker")
	}
	return true
}

func (s *RoomStore) Range(fn func(room *app.Room) bool) {
	s.mu.RLock()
	rooms := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	for _, room := range rooms {
		if !fn(room) {
			return
		}
	}
}

func (s *RoomStore) key(roomID string) string {
	return "quiz:room:" + roomID
}
