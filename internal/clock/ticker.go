package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Ticker is the externally coordinated authority: the server owns the countdown
// and publishes every decrement so all observers share one clock.
type Ticker struct {
	clk clockwork.Clock
}

// NewTicker builds a Ticker. Pass clockwork.NewRealClock() in production.
func NewTicker(clk clockwork.Clock) *Ticker {
	return &Ticker{clk: clk}
}

type tickerCountdown struct {
	*countdown
	ticker clockwork.Ticker
	ticks  chan int
}

func (t *Ticker) Start(roomID string, scope Scope, seconds int) Countdown {
	c := newCountdown(t.clk, roomID, scope, seconds)
	tc := &tickerCountdown{countdown: c, ticks: make(chan int, 1)}
	if c.seconds == 0 {
		c.expire()
		return tc
	}

	// The ticker is registered before Start returns so callers holding the room
	// lock observe a fully armed clock.
	tc.ticker = t.clk.NewTicker(time.Second)
	c.onStop = tc.ticker.Stop
	go tc.run()

	log.Debug().
		Str("room_id", roomID).
		Str("scope", string(scope)).
		Int("seconds", seconds).
		Msg("countdown armed")
	return tc
}

func (tc *tickerCountdown) Ticks() <-chan int { return tc.ticks }

func (tc *tickerCountdown) run() {
	last := tc.seconds
	for {
		select {
		case <-tc.stopped:
			return
		case <-tc.ticker.Chan():
			rem := tc.Remaining()
			if rem < last {
				last = rem
				tc.publish(rem)
			}
			if rem == 0 {
				tc.ticker.Stop()
				if tc.expire() {
					log.Debug().Str("room_id", tc.roomID).Str("scope", string(tc.scope)).Msg("countdown expired")
				}
				return
			}
		}
	}
}

// publish never blocks; a slow reader only ever sees the latest value.
func (tc *tickerCountdown) publish(rem int) {
	select {
	case tc.ticks <- rem:
		return
	default:
	}
	select {
	case <-tc.ticks:
	default:
	}
	select {
	case tc.ticks <- rem:
	default:
	}
}
