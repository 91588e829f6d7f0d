package runner

import "time"

// MonotonicClock measures milliseconds and microseconds since its creation.
// Micros wraps after about 35 minutes like the firmware counter; consumers
// must only use differences, which survive the wrap under two's-complement
// arithmetic.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

func (c *MonotonicClock) Micros() int32 {
	return int32(time.Since(c.start) / time.Microsecond)
}

func (c *MonotonicClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
