package clock

import "time"

// Clock provides the current time; services take one so tests can pin it
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Elapsed returns how long ago t was according to c
func Elapsed(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Within reports whether t lies no further than window in the past of c.Now().
// A zero t is never within the window.
func Within(c Clock, t time.Time, window time.Duration) bool {
	if t.IsZero() {
		return false
	}
	return Elapsed(c, t) < window
}
