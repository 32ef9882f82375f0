package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Deadline is the locally driven authority used by demo rooms. The server only
// keeps the deadline; the participant's client renders the countdown itself
// from the remaining time sent with each question.
type Deadline struct {
	clk clockwork.Clock
}

func NewDeadline(clk clockwork.Clock) *Deadline {
	return &Deadline{clk: clk}
}

type deadlineCountdown struct {
	*countdown
}

func (d *Deadline) Start(roomID string, scope Scope, seconds int) Countdown {
	c := newCountdown(d.clk, roomID, scope, seconds)
	if c.seconds == 0 {
		c.expire()
		return deadlineCountdown{c}
	}
	timer := d.clk.AfterFunc(time.Duration(c.seconds)*time.Second, func() {
		c.expire()
	})
	c.onStop = func() { timer.Stop() }
	return deadlineCountdown{c}
}

// Ticks is nil: nothing is pushed, the client counts down locally.
func (deadlineCountdown) Ticks() <-chan int { return nil }
