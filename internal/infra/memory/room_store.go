package memory

import (
	"sync"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
	}
}

func (s *RoomStore) Create(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID()]; ok {
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
