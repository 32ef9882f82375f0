package app

import (
	"context"

	"promptquiz-service/internal/domain"
)

// RoomRepository abstracts where live rooms are registered (in-memory, Redis-marked, etc).
type RoomRepository interface {
	Create(room *Room) error
	Get(roomID string) (*Room, bool)
	// DeleteIfIdle drops a finished room that nobody is watching anymore.
	DeleteIfIdle(roomID string) bool
	Range(fn func(room *Room) bool)
}

// BankRepository loads candidate questions for a topic (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, topic string) ([]domain.Question, error)
}

// SnapshotStore persists room snapshots so results outlive the in-process room.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, session domain.Session) error
	LoadSnapshot(ctx context.Context, roomID string) (domain.Session, error)
}

// EventPublisher ships lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.LifecycleEvent) error
}

// Observer receives counters about room activity. Implementations must be safe
// for concurrent use; calls are made while a room lock is held.
type Observer interface {
	RoomCreated(demo bool)
	StatusChanged(from, to domain.Status)
	AnswerRecorded(auto, correct bool)
	SubscriptionOpened()
	SubscriptionClosed()
}

type nopObserver struct{}

func (nopObserver) RoomCreated(bool)                           {}
func (nopObserver) StatusChanged(domain.Status, domain.Status) {}
func (nopObserver) AnswerRecorded(bool, bool)                  {}
func (nopObserver) SubscriptionOpened()                        {}
func (nopObserver) SubscriptionClosed()                        {}
