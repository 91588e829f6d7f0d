package sim

import "time"

// Clock is a simulated time source: time advances only when the control
// loop sleeps, so a replay runs as fast as the host allows while every tick
// still observes the nominal 10 ms period.
type Clock struct {
	now time.Duration
}

// NewClock starts a simulated clock at zero.
func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Millis() uint32 {
	return uint32(c.now / time.Millisecond)
}

func (c *Clock) Micros() int32 {
	return int32(c.now / time.Microsecond)
}

func (c *Clock) Sleep(d time.Duration) {
	c.now += d
}

// Now returns the simulated elapsed time.
func (c *Clock) Now() time.Duration { return c.now }
