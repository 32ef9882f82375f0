// Package clock provides the countdown authority that paces quiz rooms.
//
// Two implementations share one contract: Ticker pushes a server-side tick every
// second to whoever is watching (hosted rooms), Deadline keeps only a one-shot
// deadline and leaves the visible countdown to the client (demo rooms).
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scope is what a countdown measures.
type Scope string

const (
	// ScopeQuestion is re-armed on every question advance.
	ScopeQuestion Scope = "question"
	// ScopeSession is armed once at activation and never reset.
	ScopeSession Scope = "session"
)

// Countdown is one armed timer. Remaining never increases; once it reaches zero
// Expired is closed exactly once and the value stays frozen.
type Countdown interface {
	RoomID() string
	Scope() Scope
	Duration() int
	Remaining() int
	// Ticks delivers the remaining seconds after each decrement. It is nil for
	// locally driven countdowns.
	Ticks() <-chan int
	Expired() <-chan struct{}
	// Stop freezes the countdown without firing expiry.
	Stop()
}

// Authority arms countdowns for a room.
type Authority interface {
	Start(roomID string, scope Scope, seconds int) Countdown
}

type countdown struct {
	roomID    string
	scope     Scope
	seconds   int
	clk       clockwork.Clock
	startedAt time.Time
	expired   chan struct{}
	stopped   chan struct{}
	onStop    func()

	mu     sync.Mutex
	frozen int
	halted bool
	done   bool
}

func newCountdown(clk clockwork.Clock, roomID string, scope Scope, seconds int) *countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &countdown{
		roomID:    roomID,
		scope:     scope,
		seconds:   seconds,
		clk:       clk,
		startedAt: clk.Now(),
		expired:   make(chan struct{}),
		stopped:   make(chan struct{}),
		frozen:    -1,
	}
}

func (c *countdown) RoomID() string           { return c.roomID }
func (c *countdown) Scope() Scope             { return c.scope }
func (c *countdown) Duration() int            { return c.seconds }
func (c *countdown) Expired() <-chan struct{} { return c.expired }

func (c *countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen >= 0 {
		return c.frozen
	}
	return c.computeLocked()
}

// computeLocked floors elapsed time to whole seconds so the value moves once per second.
func (c *countdown) computeLocked() int {
	rem := c.seconds - int(c.clk.Since(c.startedAt)/time.Second)
	if rem < 0 {
		return 0
	}
	return rem
}

// expire fires the expiry signal unless the countdown was stopped first.
func (c *countdown) expire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halted || c.done {
		return false
	}
	c.done = true
	c.frozen = 0
	close(c.expired)
	return true
}

func (c *countdown) Stop() {
	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return
	}
	if !c.done {
		c.frozen = c.computeLocked()
	}
	c.halted = true
	close(c.stopped)
	c.mu.Unlock()

	if c.onStop != nil {
		c.onStop()
	}
}
