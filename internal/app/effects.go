package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/domain"
)

const (
	effectTimeout = 5 * time.Second
	eventQueue    = 32
)

// effects runs a room's outbound side effects off the room lock. Snapshots are
// coalesced so only the newest pending one is written; lifecycle events are
// queued in order and dropped with a warning if the queue is full.
type effects struct {
	roomID    string
	snapshots SnapshotStore
	publisher EventPublisher

	latest chan domain.Session
	events chan domain.LifecycleEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newEffects(roomID string, snapshots SnapshotStore, publisher EventPublisher) *effects {
	if snapshots == nil && publisher == nil {
		return nil
	}
	e := &effects{
		roomID:    roomID,
		snapshots: snapshots,
		publisher: publisher,
		latest:    make(chan domain.Session, 1),
		events:    make(chan domain.LifecycleEvent, eventQueue),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *effects) snapshot(s domain.Session) {
	if e == nil || e.snapshots == nil {
		return
	}
	select {
	case e.latest <- s:
	default:
		// Replace the stale pending snapshot.
		select {
		case <-e.latest:
		default:
		}
		select {
		case e.latest <- s:
		default:
		}
	}
}

func (e *effects) publish(evt domain.LifecycleEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	select {
	case e.events <- evt:
	default:
		log.Warn().Str("room_id", e.roomID).Str("event", evt.Type).Msg("lifecycle queue full, dropping event")
	}
}

func (e *effects) run() {
	defer close(e.done)
	for {
		select {
		case s := <-e.latest:
			e.save(s)
		case evt := <-e.events:
			e.emit(evt)
		case <-e.stop:
			e.drain()
			return
		}
	}
}

func (e *effects) drain() {
	for {
		select {
		case evt := <-e.events:
			e.emit(evt)
		case s := <-e.latest:
			e.save(s)
		default:
			return
		}
	}
}

func (e *effects) save(s domain.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()
	if err := e.snapshots.SaveSnapshot(ctx, s); err != nil {
		log.Error().Err(err).Str("room_id", e.roomID).Int64("version", s.Version).Msg("save snapshot")
	}
}

func (e *effects) emit(evt domain.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("room_id", e.roomID).Str("event", evt.Type).Msg("publish lifecycle event")
	}
}

// close flushes what is pending and stops the worker.
func (e *effects) close() {
	if e == nil {
		return
	}
	e.once.Do(func() { close(e.stop) })
	<-e.done
}
