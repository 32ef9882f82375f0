package app

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/domain"
)

const subscriptionBuffer = 64

// Subscription is one disposable registration of a connection on a room.
// The caller must invoke Cancel to avoid leaks; the events channel is closed
// when the subscription ends for any reason.
type Subscription struct {
	id       string
	identity string
	room     *Room
	ch       chan domain.Event

	// guarded by room.mu
	lastQuestion int
	closed       bool

	cancelOnce sync.Once
}

func newSubscription(room *Room, identity string) *Subscription {
	return &Subscription{
		id:           uuid.NewString(),
		identity:     identity,
		room:         room,
		ch:           make(chan domain.Event, subscriptionBuffer),
		lastQuestion: -1,
	}
}

func (s *Subscription) ID() string       { return s.id }
func (s *Subscription) Identity() string { return s.identity }
func (s *Subscription) RoomID() string   { return s.room.id }

// Events streams room events in emission order.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Cancel detaches the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.room.unsubscribe(s.id)
	})
}

// sendLocked delivers evt without blocking. Question reveals are filtered so a
// subscription only ever sees increasing indices. A full buffer drops timer
// ticks and evicts the subscriber for anything else.
func (r *Room) sendLocked(sub *Subscription, evt domain.Event) {
	if sub.closed {
		return
	}
	if q, ok := evt.Payload.(domain.QuestionPayload); ok {
		if q.QuestionIndex <= sub.lastQuestion {
			return
		}
		sub.lastQuestion = q.QuestionIndex
	}
	select {
	case sub.ch <- evt:
	default:
		if evt.Type == domain.EventTimer {
			return
		}
		log.Warn().
			Str("room_id", r.id).
			Str("identity", sub.identity).
			Str("event", evt.Type).
			Msg("subscriber too slow, evicting")
		r.dropLocked(sub)
	}
}

func (r *Room) broadcastLocked(evt domain.Event) {
	for _, sub := range r.subs {
		r.sendLocked(sub, evt)
	}
}

func (r *Room) sendToLocked(identity string, evt domain.Event) {
	for _, sub := range r.subs {
		if sub.identity == identity {
			r.sendLocked(sub, evt)
		}
	}
}

func (r *Room) attachLocked(identity string) *Subscription {
	sub := newSubscription(r, identity)
	r.subs[sub.id] = sub
	r.observer.SubscriptionOpened()
	if r.roster.setConnection(identity, domain.Connected) {
		r.broadcastRosterLocked()
		r.changedLocked()
	}
	return sub
}

// dropLocked closes the subscription and queues its identity for a connection
// state check in settleLocked.
func (r *Room) dropLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(r.subs, sub.id)
	close(sub.ch)
	r.observer.SubscriptionClosed()
	r.detached = append(r.detached, sub.identity)
}

func (r *Room) unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return
	}
	r.dropLocked(sub)
	r.settleLocked()
}

func (r *Room) hasSubscriptionLocked(identity string) bool {
	for _, sub := range r.subs {
		if sub.identity == identity {
			return true
		}
	}
	return false
}

// settleLocked marks identities with no remaining subscription as disconnected.
// A disconnect can complete the all-answered condition, so advance is rechecked.
func (r *Room) settleLocked() {
	for len(r.detached) > 0 {
		identity := r.detached[0]
		r.detached = r.detached[1:]
		if r.hasSubscriptionLocked(identity) {
			continue
		}
		if !r.roster.setConnection(identity, domain.Disconnected) {
			continue
		}
		log.Debug().Str("room_id", r.id).Str("identity", identity).Msg("participant disconnected")
		r.broadcastRosterLocked()
		r.changedLocked()
		r.maybeAdvanceLocked()
	}
}
